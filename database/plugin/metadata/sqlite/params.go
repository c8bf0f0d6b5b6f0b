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

	"github.com/blinklabs-io/veilpost/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ledgerParamsRowId = 1
)

// GetLedgerParams gets the current service parameters. Returns nil if no
// parameters have been stored yet.
func (d *MetadataStoreSqlite) GetLedgerParams(
	txn *gorm.DB,
) (*models.LedgerParams, error) {
	ret := &models.LedgerParams{}
	if txn == nil {
		txn = d.DB()
	}
	result := txn.First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetLedgerParams stores the service parameters, replacing any existing row
func (d *MetadataStoreSqlite) SetLedgerParams(
	params *models.LedgerParams,
	txn *gorm.DB,
) error {
	if txn == nil {
		txn = d.DB()
	}
	params.ID = ledgerParamsRowId
	result := txn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(
			[]string{
				"admin",
				"subscription_price",
				"subscription_duration",
				"balance",
			},
		),
	}).Create(params)
	if result.Error != nil {
		return result.Error
	}
	return nil
}
