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

package sqlite_test

import (
	"testing"

	"github.com/blinklabs-io/veilpost/database/models"
	"github.com/blinklabs-io/veilpost/database/plugin/metadata/sqlite"
	"github.com/blinklabs-io/veilpost/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.MetadataStoreSqlite {
	t.Helper()
	store, err := sqlite.New(t.TempDir(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return store
}

func TestOrganizationRoundTrip(t *testing.T) {
	store := newTestStore(t)

	org := &models.Organization{
		Principal:       "org-alpha",
		MetadataRef:     "ipfs://bafytestcid",
		SubscriptionEnd: types.Uint64(1700000000),
		AddedSeq:        1,
	}
	require.NoError(t, store.AddOrganization(org, nil))
	require.NotZero(t, org.ID)

	// Fetch it back
	fetched, err := store.GetOrganization("org-alpha", nil)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "org-alpha", fetched.Principal)
	assert.Equal(t, "ipfs://bafytestcid", fetched.MetadataRef)
	assert.Equal(t, types.Uint64(1700000000), fetched.SubscriptionEnd)
	assert.False(t, fetched.Verified)

	// Unknown principal returns nil without error
	missing, err := store.GetOrganization("org-unknown", nil)
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Update and fetch again
	fetched.Verified = true
	fetched.MembershipRoot = []byte{0x01, 0x02}
	require.NoError(t, store.UpdateOrganization(fetched, nil))
	updated, err := store.GetOrganization("org-alpha", nil)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.True(t, updated.Verified)
	assert.Equal(t, []byte{0x01, 0x02}, updated.MembershipRoot)
}

func TestOrganizationDuplicatePrincipal(t *testing.T) {
	store := newTestStore(t)

	org := &models.Organization{
		Principal:   "org-dup",
		MetadataRef: "meta-1",
	}
	require.NoError(t, store.AddOrganization(org, nil))

	// A second record for the same principal should violate the unique index
	dup := &models.Organization{
		Principal:   "org-dup",
		MetadataRef: "meta-2",
	}
	err := store.AddOrganization(dup, nil)
	assert.Error(t, err)
}

func TestGetOrganizations(t *testing.T) {
	store := newTestStore(t)

	for _, principal := range []string{"org-c", "org-a", "org-b"} {
		org := &models.Organization{
			Principal:   principal,
			MetadataRef: "meta",
		}
		require.NoError(t, store.AddOrganization(org, nil))
	}

	orgs, err := store.GetOrganizations(nil)
	require.NoError(t, err)
	require.Len(t, orgs, 3)
	// Results are ordered by principal
	assert.Equal(t, "org-a", orgs[0].Principal)
	assert.Equal(t, "org-b", orgs[1].Principal)
	assert.Equal(t, "org-c", orgs[2].Principal)
}

func TestNullifierRoundTrip(t *testing.T) {
	store := newTestStore(t)

	nullifierValue := []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
		0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20,
	}

	// Not consumed yet
	existing, err := store.GetNullifier("org-a", nullifierValue, nil)
	require.NoError(t, err)
	assert.Nil(t, existing)

	require.NoError(t, store.AddNullifier(
		&models.Nullifier{
			OrgPrincipal: "org-a",
			Nullifier:    nullifierValue,
			AddedSeq:     7,
		},
		nil,
	))

	// Consumed for org-a
	consumed, err := store.GetNullifier("org-a", nullifierValue, nil)
	require.NoError(t, err)
	require.NotNil(t, consumed)
	assert.Equal(t, uint64(7), consumed.AddedSeq)

	// Same value under a different organization is still unused
	other, err := store.GetNullifier("org-b", nullifierValue, nil)
	require.NoError(t, err)
	assert.Nil(t, other)

	// The same value can be recorded under a different organization
	require.NoError(t, store.AddNullifier(
		&models.Nullifier{
			OrgPrincipal: "org-b",
			Nullifier:    nullifierValue,
			AddedSeq:     8,
		},
		nil,
	))

	// But not twice under the same organization
	err = store.AddNullifier(
		&models.Nullifier{
			OrgPrincipal: "org-a",
			Nullifier:    nullifierValue,
			AddedSeq:     9,
		},
		nil,
	)
	assert.Error(t, err)
}

func TestLedgerParamsUpsert(t *testing.T) {
	store := newTestStore(t)

	// No params stored yet
	params, err := store.GetLedgerParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)

	require.NoError(t, store.SetLedgerParams(
		&models.LedgerParams{
			Admin:                "admin-1",
			SubscriptionPrice:    types.Uint64(1000),
			SubscriptionDuration: types.Uint64(2592000),
			Balance:              types.Uint64(0),
		},
		nil,
	))

	params, err = store.GetLedgerParams(nil)
	require.NoError(t, err)
	require.NotNil(t, params)
	assert.Equal(t, "admin-1", params.Admin)
	assert.Equal(t, types.Uint64(1000), params.SubscriptionPrice)

	// Replacing parameters updates the single row in place
	require.NoError(t, store.SetLedgerParams(
		&models.LedgerParams{
			Admin:                "admin-2",
			SubscriptionPrice:    types.Uint64(5000),
			SubscriptionDuration: types.Uint64(2592000),
			Balance:              types.Uint64(1000),
		},
		nil,
	))

	params, err = store.GetLedgerParams(nil)
	require.NoError(t, err)
	require.NotNil(t, params)
	assert.Equal(t, "admin-2", params.Admin)
	assert.Equal(t, types.Uint64(5000), params.SubscriptionPrice)
	assert.Equal(t, types.Uint64(1000), params.Balance)
}

func TestCommitTimestamp(t *testing.T) {
	store := newTestStore(t)

	// Defaults to zero with no record
	ts, err := store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	require.NoError(t, store.SetCommitTimestamp(nil, 123456))
	ts, err = store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(123456), ts)

	// Updates existing record
	require.NoError(t, store.SetCommitTimestamp(nil, 234567))
	ts, err = store.GetCommitTimestamp()
	require.NoError(t, err)
	assert.Equal(t, int64(234567), ts)
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStore(t)

	txn := store.Transaction()
	require.NoError(t, txn.Error)
	org := &models.Organization{
		Principal:   "org-rollback",
		MetadataRef: "meta",
	}
	require.NoError(t, store.AddOrganization(org, txn))
	require.NoError(t, txn.Rollback().Error)

	// The rolled-back record should not be visible
	fetched, err := store.GetOrganization("org-rollback", nil)
	require.NoError(t, err)
	assert.Nil(t, fetched)
}
