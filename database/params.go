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

package database

import (
	"github.com/blinklabs-io/veilpost/database/models"
)

// GetLedgerParams returns the current service parameters, or nil if they
// have never been persisted
func (d *Database) GetLedgerParams(
	txn *Txn,
) (*models.LedgerParams, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetLedgerParams(txn.Metadata())
}

// SetLedgerParams persists the service parameters
func (d *Database) SetLedgerParams(
	params *models.LedgerParams,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.SetLedgerParams(params, txn.Metadata())
}
