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
	"sync"
)

// SettlementBackend moves withdrawn funds to a recipient principal. The
// ledger calls Transfer exactly once per withdrawal and does not retry; a
// failed transfer leaves the balance untouched.
type SettlementBackend interface {
	Transfer(recipient Principal, amount uint64) error
}

// MemorySettlement is an in-process settlement backend that accumulates
// transfers per recipient. Suitable for single-node deployments and tests.
type MemorySettlement struct {
	mutex    sync.Mutex
	balances map[Principal]uint64
}

func NewMemorySettlement() *MemorySettlement {
	return &MemorySettlement{
		balances: make(map[Principal]uint64),
	}
}

func (m *MemorySettlement) Transfer(recipient Principal, amount uint64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.balances[recipient] += amount
	return nil
}

// Balance returns the total transferred to a recipient
func (m *MemorySettlement) Balance(recipient Principal) uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.balances[recipient]
}
