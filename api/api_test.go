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

package api_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blinklabs-io/veilpost/api"
	"github.com/blinklabs-io/veilpost/database"
	_ "github.com/blinklabs-io/veilpost/database/plugin/blob/badger"
	"github.com/blinklabs-io/veilpost/event"
	"github.com/blinklabs-io/veilpost/journal"
	"github.com/blinklabs-io/veilpost/keystore"
	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin = ledger.Principal("admin-1")
	testOrg   = ledger.Principal("org-1")
	testPrice = uint64(500)
)

type testEnv struct {
	server   *httptest.Server
	keystore *keystore.KeyStore
	ledger   *ledger.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: ""})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(bus.Stop)
	l, err := ledger.NewLedger(
		ledger.LedgerConfig{
			EventBus:             bus,
			Database:             db,
			Admin:                testAdmin,
			Confirmers:           []ledger.Principal{"verifier-1"},
			Settlement:           ledger.NewMemorySettlement(),
			SubscriptionPrice:    testPrice,
			SubscriptionDuration: 2592000,
		},
	)
	require.NoError(t, err)

	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{})
	_, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	ks.SetSigningKey(sk)

	a := api.New(api.ApiConfig{}, l, ks, nil)
	server := httptest.NewServer(a.Handler())
	t.Cleanup(server.Close)
	return &testEnv{
		server:   server,
		keystore: ks,
		ledger:   l,
	}
}

func (e *testEnv) token(t *testing.T, subject ledger.Principal) string {
	t.Helper()
	signed, err := e.keystore.SignToken(
		jwt.RegisteredClaims{
			Subject:   string(subject),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	)
	require.NoError(t, err)
	return signed
}

// doRequest sends a JSON request, optionally authenticated as the given
// principal (empty string for anonymous)
func (e *testEnv) doRequest(
	t *testing.T,
	method string,
	path string,
	as ledger.Principal,
	body any,
) *http.Response {
	t.Helper()
	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		require.NoError(t, json.NewEncoder(reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(
		context.Background(),
		method,
		e.server.URL+path,
		reqBody,
	)
	require.NoError(t, err)
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, as))
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var ret T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	return ret
}

func testDigest(fill byte) ledger.Digest {
	var ret ledger.Digest
	for i := range ret {
		ret[i] = fill
	}
	return ret
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doRequest(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[api.HealthResponse](t, resp)
	assert.True(t, body.IsHealthy)
}

func TestRegisterAndFetchOrganization(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/organizations",
		testOrg,
		api.RegisterRequest{MetadataRef: "ipfs://meta"},
	)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.doRequest(
		t,
		http.MethodGet,
		"/api/v1/organizations/org-1",
		"",
		nil,
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	org := decodeBody[api.OrganizationResponse](t, resp)
	assert.Equal(t, testOrg, org.Principal)
	assert.Equal(t, "ipfs://meta", org.MetadataRef)
	assert.False(t, org.Verified)

	// Duplicate registration conflicts
	resp = env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/organizations",
		testOrg,
		api.RegisterRequest{MetadataRef: "ipfs://other"},
	)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegisterRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/organizations",
		"",
		api.RegisterRequest{MetadataRef: "ipfs://meta"},
	)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOrganizationNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doRequest(
		t,
		http.MethodGet,
		"/api/v1/organizations/nobody",
		"",
		nil,
	)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPurchaseSubscription(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Register(testOrg, "ipfs://meta"))

	resp := env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/subscription/purchase",
		testOrg,
		api.PurchaseRequest{Payment: testPrice},
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[api.PurchaseResponse](t, resp)
	assert.Greater(t, body.SubscriptionEnd, uint64(0))

	// Wrong payment
	resp = env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/subscription/purchase",
		testOrg,
		api.PurchaseRequest{Payment: testPrice - 1},
	)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	// Status endpoint reflects the active subscription
	resp = env.doRequest(
		t,
		http.MethodGet,
		"/api/v1/organizations/org-1/subscription",
		"",
		nil,
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[api.SubscriptionStatusResponse](t, resp)
	assert.True(t, status.Active)
	assert.Equal(t, body.SubscriptionEnd, status.SubscriptionEnd)
}

func TestPurchaseSubscriptionUnregistered(t *testing.T) {
	env := newTestEnv(t)
	resp := env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/subscription/purchase",
		testOrg,
		api.PurchaseRequest{Payment: testPrice},
	)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRootUpdate(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Register(testOrg, "ipfs://meta"))

	newRoot := testDigest(0xaa)
	resp := env.doRequest(
		t,
		http.MethodPut,
		"/api/v1/organizations/root",
		testOrg,
		api.RootUpdateRequest{NewRoot: newRoot},
	)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	org, err := env.ledger.Organization(testOrg)
	require.NoError(t, err)
	assert.Equal(t, newRoot, org.MembershipRoot)

	// Admin override on behalf of the org
	adminRoot := testDigest(0xbb)
	resp = env.doRequest(
		t,
		http.MethodPut,
		"/api/v1/organizations/org-1/root",
		testAdmin,
		api.RootUpdateRequest{NewRoot: adminRoot},
	)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Non-admin cannot use the override
	resp = env.doRequest(
		t,
		http.MethodPut,
		"/api/v1/organizations/org-1/root",
		"intruder",
		api.RootUpdateRequest{NewRoot: adminRoot},
	)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPostWorkflow(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Register(testOrg, "ipfs://meta"))
	postCommitment := testDigest(0x11)
	nullifier := testDigest(0x22)

	// Anonymous submission
	resp := env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/posts",
		"",
		api.SubmitPostRequest{
			Org:            testOrg,
			PostCommitment: postCommitment,
			NullifierHash:  nullifier,
			Proof:          []byte("proof-payload"),
		},
	)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Confirmation by the configured verifier
	resp = env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/posts/confirm",
		"verifier-1",
		api.PostDecisionRequest{
			Org:            testOrg,
			PostCommitment: postCommitment,
			NullifierHash:  nullifier,
		},
	)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Nullifier is now consumed
	resp = env.doRequest(
		t,
		http.MethodGet,
		"/api/v1/organizations/org-1/nullifiers/"+nullifier.String(),
		"",
		nil,
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	nresp := decodeBody[api.NullifierResponse](t, resp)
	assert.True(t, nresp.Used)

	// Replayed submission conflicts
	resp = env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/posts",
		"",
		api.SubmitPostRequest{
			Org:            testOrg,
			PostCommitment: postCommitment,
			NullifierHash:  nullifier,
			Proof:          []byte("proof-payload"),
		},
	)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unauthorized confirmer
	resp = env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/posts/confirm",
		"intruder",
		api.PostDecisionRequest{
			Org:            testOrg,
			PostCommitment: postCommitment,
			NullifierHash:  testDigest(0x33),
		},
	)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestParamsAdministration(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doRequest(t, http.MethodGet, "/api/v1/params", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	params := decodeBody[api.ParamsResponse](t, resp)
	assert.Equal(t, testAdmin, params.Admin)
	assert.Equal(t, testPrice, params.SubscriptionPrice)

	// Price update requires the administrator
	resp = env.doRequest(
		t,
		http.MethodPut,
		"/api/v1/params/price",
		testOrg,
		api.PriceUpdateRequest{Price: 900},
	)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.doRequest(
		t,
		http.MethodPut,
		"/api/v1/params/price",
		testAdmin,
		api.PriceUpdateRequest{Price: 900},
	)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.doRequest(t, http.MethodGet, "/api/v1/params", "", nil)
	params = decodeBody[api.ParamsResponse](t, resp)
	assert.Equal(t, uint64(900), params.SubscriptionPrice)
}

func TestWithdrawAndTransfer(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Register(testOrg, "ipfs://meta"))
	_, err := env.ledger.PurchaseSubscription(testOrg, testPrice)
	require.NoError(t, err)

	resp := env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/admin/withdraw",
		testAdmin,
		nil,
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[api.WithdrawResponse](t, resp)
	assert.Equal(t, testPrice, body.Amount)

	// Transfer administration, then the old admin loses access
	resp = env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/admin/transfer",
		testAdmin,
		api.TransferAdminRequest{NewAdmin: "admin-2"},
	)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.doRequest(
		t,
		http.MethodPost,
		"/api/v1/admin/withdraw",
		testAdmin,
		nil,
	)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestJournalPagination(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Register(testOrg, "ipfs://meta"))
	_, err := env.ledger.PurchaseSubscription(testOrg, testPrice)
	require.NoError(t, err)
	require.NoError(
		t,
		env.ledger.UpdateMerkleRoot(testOrg, testDigest(0xaa)),
	)

	resp := env.doRequest(
		t,
		http.MethodGet,
		"/api/v1/journal?count=2&page=1",
		"",
		nil,
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get("X-Pagination-Count-Total"))
	assert.Equal(t, "2", resp.Header.Get("X-Pagination-Page-Total"))
	entries := decodeBody[[]journal.Entry](t, resp)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(
		t,
		string(ledger.OrganizationRegisteredEventType),
		entries[0].Type,
	)

	// Descending order returns the newest entry first
	resp = env.doRequest(
		t,
		http.MethodGet,
		"/api/v1/journal?count=2&order=desc",
		"",
		nil,
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	entries = decodeBody[[]journal.Entry](t, resp)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(3), entries[0].Seq)
	assert.Equal(t, uint64(2), entries[1].Seq)

	// Past the last page is empty
	resp = env.doRequest(
		t,
		http.MethodGet,
		"/api/v1/journal?count=2&page=5",
		"",
		nil,
	)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	entries = decodeBody[[]journal.Entry](t, resp)
	assert.Empty(t, entries)
}

func TestAuthRejectsForgedToken(t *testing.T) {
	env := newTestEnv(t)
	// Token signed by a different key
	_, otherKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	forged, err := jwt.NewWithClaims(
		jwt.SigningMethodEdDSA,
		jwt.RegisteredClaims{
			Subject:   string(testOrg),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	).SignedString(otherKey)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodPost,
		env.server.URL+"/api/v1/organizations",
		bytes.NewBufferString(`{"metadata_ref":"ipfs://meta"}`),
	)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t)
	a := api.New(
		api.ApiConfig{ListenAddress: "localhost:0"},
		env.ledger,
		env.keystore,
		nil,
	)
	require.NoError(t, a.Start(t.Context()))

	// Starting again should error
	err := a.Start(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	stopCtx, stopCancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx))

	// Stop is idempotent
	require.NoError(t, a.Stop(stopCtx))
}
