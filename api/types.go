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

package api

import "github.com/blinklabs-io/veilpost/ledger"

// RootResponse is the response for GET /.
type RootResponse struct {
	URL     string `json:"url"`
	Version string `json:"version"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// RegisterRequest is the request body for POST /api/v1/organizations.
type RegisterRequest struct {
	MetadataRef string `json:"metadata_ref"`
}

// OrganizationResponse is the response for organization reads.
type OrganizationResponse struct {
	Principal       ledger.Principal `json:"principal"`
	MetadataRef     string           `json:"metadata_ref"`
	MembershipRoot  ledger.Digest    `json:"membership_root"`
	SubscriptionEnd uint64           `json:"subscription_end"`
	Verified        bool             `json:"verified"`
}

// SubscriptionStatusResponse is the response for subscription queries.
type SubscriptionStatusResponse struct {
	Active          bool   `json:"active"`
	SubscriptionEnd uint64 `json:"subscription_end"`
}

// PurchaseRequest is the request body for subscription purchases.
type PurchaseRequest struct {
	Payment uint64 `json:"payment"`
}

// PurchaseResponse is the response for subscription purchases.
type PurchaseResponse struct {
	SubscriptionEnd uint64 `json:"subscription_end"`
}

// RootUpdateRequest is the request body for membership root rotations.
type RootUpdateRequest struct {
	NewRoot ledger.Digest `json:"new_root"`
}

// VerifiedUpdateRequest is the request body for verified flag updates.
type VerifiedUpdateRequest struct {
	Verified bool `json:"verified"`
}

// SubmitPostRequest is the request body for POST /api/v1/posts. The proof
// payload is base64-encoded in transit and forwarded opaquely.
type SubmitPostRequest struct {
	Org            ledger.Principal `json:"org"`
	PostCommitment ledger.Digest    `json:"post_commitment"`
	NullifierHash  ledger.Digest    `json:"nullifier_hash"`
	Proof          []byte           `json:"proof"`
}

// PostDecisionRequest is the request body for confirm/reject calls.
type PostDecisionRequest struct {
	Org            ledger.Principal `json:"org"`
	PostCommitment ledger.Digest    `json:"post_commitment"`
	NullifierHash  ledger.Digest    `json:"nullifier_hash"`
}

// NullifierResponse is the response for nullifier queries.
type NullifierResponse struct {
	Used bool `json:"used"`
}

// ParamsResponse is the response for GET /api/v1/params.
type ParamsResponse struct {
	Admin                ledger.Principal `json:"admin"`
	SubscriptionPrice    uint64           `json:"subscription_price"`
	SubscriptionDuration uint64           `json:"subscription_duration"`
}

// PriceUpdateRequest is the request body for price updates.
type PriceUpdateRequest struct {
	Price uint64 `json:"price"`
}

// DurationUpdateRequest is the request body for duration updates.
type DurationUpdateRequest struct {
	Duration uint64 `json:"duration"`
}

// WithdrawResponse is the response for balance withdrawals.
type WithdrawResponse struct {
	Amount uint64 `json:"amount"`
}

// TransferAdminRequest is the request body for administration transfers.
type TransferAdminRequest struct {
	NewAdmin ledger.Principal `json:"new_admin"`
}
