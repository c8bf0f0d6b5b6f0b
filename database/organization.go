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

// GetOrganization returns the organization record for the given principal,
// or nil if the principal has never been registered
func (d *Database) GetOrganization(
	principal string,
	txn *Txn,
) (*models.Organization, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetOrganization(principal, txn.Metadata())
}

// GetOrganizations returns all registered organizations
func (d *Database) GetOrganizations(
	txn *Txn,
) ([]models.Organization, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetOrganizations(txn.Metadata())
}

// AddOrganization stores a newly registered organization
func (d *Database) AddOrganization(
	org *models.Organization,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.AddOrganization(org, txn.Metadata())
}

// UpdateOrganization persists changes to an existing organization
func (d *Database) UpdateOrganization(
	org *models.Organization,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.UpdateOrganization(org, txn.Metadata())
}
