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

package sqlite

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/veilpost/database/models"
	"gorm.io/gorm"
)

// GetNullifier gets a consumed nullifier record for an organization. Returns
// nil if the nullifier has not been consumed.
func (d *MetadataStoreSqlite) GetNullifier(
	orgPrincipal string,
	nullifier []byte,
	txn *gorm.DB,
) (*models.Nullifier, error) {
	ret := &models.Nullifier{}
	if txn == nil {
		txn = d.DB()
	}
	result := txn.Where(
		"org_principal = ? AND nullifier = ?",
		orgPrincipal,
		nullifier,
	).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetNullifiersByOrganization returns all consumed nullifiers for an organization
func (d *MetadataStoreSqlite) GetNullifiersByOrganization(
	orgPrincipal string,
	txn *gorm.DB,
) ([]models.Nullifier, error) {
	var ret []models.Nullifier
	if txn == nil {
		txn = d.DB()
	}
	result := txn.Where("org_principal = ?", orgPrincipal).
		Order("added_seq").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AddNullifier records a consumed nullifier
func (d *MetadataStoreSqlite) AddNullifier(
	nullifier *models.Nullifier,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	if result := txn.Create(nullifier); result.Error != nil {
		return fmt.Errorf("failed to add nullifier: %w", result.Error)
	}
	return nil
}
