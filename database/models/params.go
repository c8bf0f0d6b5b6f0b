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

package models

import (
	"github.com/blinklabs-io/veilpost/database/types"
)

// LedgerParams stores the current service parameters and treasury balance.
// There is a single row, created on first startup and updated in place.
type LedgerParams struct {
	Admin                string `gorm:"size:128;not null"`
	ID                   uint   `gorm:"primarykey"`
	SubscriptionPrice    types.Uint64
	SubscriptionDuration types.Uint64
	Balance              types.Uint64
}

func (LedgerParams) TableName() string {
	return "ledger_params"
}
