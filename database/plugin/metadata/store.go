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

package metadata

import (
	"log/slog"

	"github.com/blinklabs-io/veilpost/database/models"
	"github.com/blinklabs-io/veilpost/database/plugin/metadata/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(*gorm.DB, int64) error
	Transaction() *gorm.DB

	// Organizations
	GetOrganization(
		string, // principal
		*gorm.DB,
	) (*models.Organization, error)
	GetOrganizations(*gorm.DB) ([]models.Organization, error)
	AddOrganization(
		*models.Organization,
		*gorm.DB,
	) error
	UpdateOrganization(
		*models.Organization,
		*gorm.DB,
	) error

	// Nullifiers
	GetNullifier(
		string, // orgPrincipal
		[]byte, // nullifier
		*gorm.DB,
	) (*models.Nullifier, error)
	GetNullifiersByOrganization(
		string, // orgPrincipal
		*gorm.DB,
	) ([]models.Nullifier, error)
	AddNullifier(
		*models.Nullifier,
		*gorm.DB,
	) error

	// Service parameters
	GetLedgerParams(*gorm.DB) (*models.LedgerParams, error)
	SetLedgerParams(
		*models.LedgerParams,
		*gorm.DB,
	) error
}

// For now, this always returns a sqlite plugin
func New(
	pluginName, dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	return sqlite.New(dataDir, logger, promRegistry)
}
