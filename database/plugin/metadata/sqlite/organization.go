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

// GetOrganization gets an organization by its principal
func (d *MetadataStoreSqlite) GetOrganization(
	principal string,
	txn *gorm.DB,
) (*models.Organization, error) {
	ret := &models.Organization{}
	if txn == nil {
		txn = d.DB()
	}
	result := txn.Where("principal = ?", principal).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetOrganizations returns all registered organizations
func (d *MetadataStoreSqlite) GetOrganizations(
	txn *gorm.DB,
) ([]models.Organization, error) {
	var ret []models.Organization
	if txn == nil {
		txn = d.DB()
	}
	result := txn.Order("principal").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// AddOrganization inserts a new organization record
func (d *MetadataStoreSqlite) AddOrganization(
	org *models.Organization,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	if result := txn.Create(org); result.Error != nil {
		return fmt.Errorf("failed to add organization: %w", result.Error)
	}
	return nil
}

// UpdateOrganization saves changes to an existing organization record
func (d *MetadataStoreSqlite) UpdateOrganization(
	org *models.Organization,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	if org.ID == 0 {
		return errors.New("organization record has no ID")
	}
	if result := txn.Save(org); result.Error != nil {
		return fmt.Errorf("failed to update organization: %w", result.Error)
	}
	return nil
}
