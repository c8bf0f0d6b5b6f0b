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

package database_test

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/veilpost/database"
	"github.com/blinklabs-io/veilpost/database/models"
	_ "github.com/blinklabs-io/veilpost/database/plugin/blob/badger"
	"github.com/blinklabs-io/veilpost/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(
		&database.Config{
			DataDir: "",
		},
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	return db
}

func TestDatabaseOrganizationRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	org := &models.Organization{
		Principal:       "org-1",
		MetadataRef:     "ipfs://QmTest",
		MembershipRoot:  make([]byte, 32),
		AddedSeq:        1,
		SubscriptionEnd: types.Uint64(1000),
	}
	require.NoError(t, db.AddOrganization(org, nil))
	ret, err := db.GetOrganization("org-1", nil)
	require.NoError(t, err)
	require.NotNil(t, ret)
	assert.Equal(t, "org-1", ret.Principal)
	assert.Equal(t, "ipfs://QmTest", ret.MetadataRef)
	assert.Equal(t, types.Uint64(1000), ret.SubscriptionEnd)
	// Unknown principal returns nil without error
	missing, err := db.GetOrganization("org-unknown", nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDatabaseNullifierRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	nullifier := make([]byte, 32)
	nullifier[0] = 0xa5
	require.NoError(
		t,
		db.AddNullifier(
			&models.Nullifier{
				OrgPrincipal: "org-1",
				Nullifier:    nullifier,
				AddedSeq:     3,
			},
			nil,
		),
	)
	ret, err := db.GetNullifier("org-1", nullifier, nil)
	require.NoError(t, err)
	require.NotNil(t, ret)
	assert.Equal(t, uint64(3), ret.AddedSeq)
	// Same nullifier under a different organization is not consumed
	other, err := db.GetNullifier("org-2", nullifier, nil)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestDatabaseLedgerParams(t *testing.T) {
	db := newTestDatabase(t)
	ret, err := db.GetLedgerParams(nil)
	require.NoError(t, err)
	assert.Nil(t, ret)
	params := &models.LedgerParams{
		Admin:                "admin-1",
		SubscriptionPrice:    types.Uint64(500),
		SubscriptionDuration: types.Uint64(2592000),
		Balance:              types.Uint64(0),
	}
	require.NoError(t, db.SetLedgerParams(params, nil))
	ret, err = db.GetLedgerParams(nil)
	require.NoError(t, err)
	require.NotNil(t, ret)
	assert.Equal(t, "admin-1", ret.Admin)
	// Upsert replaces the singleton row
	params.Balance = types.Uint64(500)
	require.NoError(t, db.SetLedgerParams(params, nil))
	ret, err = db.GetLedgerParams(nil)
	require.NoError(t, err)
	require.NotNil(t, ret)
	assert.Equal(t, types.Uint64(500), ret.Balance)
}

func TestDatabaseTransactionRollback(t *testing.T) {
	db := newTestDatabase(t)
	testErr := errors.New("induced failure")
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := db.AddOrganization(
			&models.Organization{
				Principal:      "org-rollback",
				MembershipRoot: make([]byte, 32),
			},
			txn,
		); err != nil {
			return err
		}
		if err := db.Blob().Set(txn.Blob(), []byte("test-key"), []byte("test-value")); err != nil {
			return err
		}
		return testErr
	})
	require.ErrorIs(t, err, testErr)
	// Neither store retains the aborted writes
	ret, err := db.GetOrganization("org-rollback", nil)
	require.NoError(t, err)
	assert.Nil(t, ret)
	blobTxn := db.BlobTransaction(false)
	defer blobTxn.Release()
	_, err = db.Blob().Get(blobTxn.Blob(), []byte("test-key"))
	assert.ErrorIs(t, err, types.ErrBlobKeyNotFound)
}

func TestDatabaseCommitUpdatesTimestamps(t *testing.T) {
	db := newTestDatabase(t)
	err := db.Transaction(true).Do(func(txn *database.Txn) error {
		return db.AddOrganization(
			&models.Organization{
				Principal:      "org-ts",
				MembershipRoot: make([]byte, 32),
			},
			txn,
		)
	})
	require.NoError(t, err)
	metadataTs, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	blobTs, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Greater(t, metadataTs, int64(0))
	assert.Equal(t, metadataTs, blobTs)
}
