// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	operationsTotal    *prometheus.CounterVec
	organizationsTotal prometheus.Counter
	nullifiersTotal    prometheus.Counter
	balance            prometheus.Gauge
}

func (m *ledgerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.operationsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veilpost_ledger_operations_total",
			Help: "ledger operations by name and outcome",
		},
		[]string{"operation", "outcome"},
	)
	m.organizationsTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "veilpost_ledger_organizations_registered_total",
			Help: "organizations registered since process start",
		},
	)
	m.nullifiersTotal = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "veilpost_ledger_nullifiers_consumed_total",
			Help: "nullifiers consumed since process start",
		},
	)
	m.balance = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "veilpost_ledger_balance",
			Help: "accumulated subscription funds awaiting withdrawal",
		},
	)
}

func (m *ledgerMetrics) observeOp(operation string, err error) {
	if m == nil || m.operationsTotal == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
}
