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

// GetNullifier returns the stored nullifier record for the given organization
// and nullifier hash, or nil if the nullifier has not been consumed
func (d *Database) GetNullifier(
	orgPrincipal string,
	nullifier []byte,
	txn *Txn,
) (*models.Nullifier, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetNullifier(orgPrincipal, nullifier, txn.Metadata())
}

// GetNullifiersByOrganization returns all consumed nullifiers for the given
// organization
func (d *Database) GetNullifiersByOrganization(
	orgPrincipal string,
	txn *Txn,
) ([]models.Nullifier, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetNullifiersByOrganization(orgPrincipal, txn.Metadata())
}

// AddNullifier marks a nullifier as consumed for an organization
func (d *Database) AddNullifier(
	nullifier *models.Nullifier,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.AddNullifier(nullifier, txn.Metadata())
}
