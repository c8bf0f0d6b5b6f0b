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

import (
	"github.com/blinklabs-io/veilpost/journal"
	"github.com/blinklabs-io/veilpost/ledger"
)

// LedgerService is the interface that the API server uses to drive the
// ledger. This decouples the HTTP server from the concrete Ledger struct
// and enables testing with mock implementations.
type LedgerService interface {
	// Register adds the caller to the organization registry.
	Register(caller ledger.Principal, metadataRef string) error

	// Organization returns the record for an organization. A missing
	// organization is reported via the record's Exists flag.
	Organization(id ledger.Principal) (ledger.OrganizationRecord, error)

	// PurchaseSubscription extends or restarts the caller's subscription
	// and returns the new expiry.
	PurchaseSubscription(
		caller ledger.Principal,
		payment uint64,
	) (uint64, error)

	// HasActiveSubscription reports whether the subscription window is
	// still open.
	HasActiveSubscription(id ledger.Principal) (bool, error)

	// UpdateMerkleRoot rotates the caller's own membership root.
	UpdateMerkleRoot(caller ledger.Principal, newRoot ledger.Digest) error

	// UpdateMerkleRootForOrg rotates a target organization's membership
	// root on behalf of the administrator.
	UpdateMerkleRootForOrg(
		caller ledger.Principal,
		orgId ledger.Principal,
		newRoot ledger.Digest,
	) error

	// SubmitPost announces an anonymous post submission.
	SubmitPost(
		orgId ledger.Principal,
		postCommitment ledger.Digest,
		nullifierHash ledger.Digest,
		proof []byte,
	) error

	// ConfirmPost accepts a submission and consumes its nullifier.
	ConfirmPost(
		caller ledger.Principal,
		orgId ledger.Principal,
		postCommitment ledger.Digest,
		nullifierHash ledger.Digest,
	) error

	// RejectPost declines a submission without any state change.
	RejectPost(
		caller ledger.Principal,
		orgId ledger.Principal,
		postCommitment ledger.Digest,
		nullifierHash ledger.Digest,
	) error

	// IsNullifierUsed reports whether a nullifier has been consumed for
	// the given organization.
	IsNullifierUsed(
		orgId ledger.Principal,
		nullifierHash ledger.Digest,
	) (bool, error)

	// SetVerified updates an organization's verified flag.
	SetVerified(
		caller ledger.Principal,
		orgId ledger.Principal,
		status bool,
	) error

	// UpdateSubscriptionPrice sets the global subscription price.
	UpdateSubscriptionPrice(caller ledger.Principal, newPrice uint64) error

	// UpdateSubscriptionDuration sets the global subscription duration.
	UpdateSubscriptionDuration(
		caller ledger.Principal,
		newDuration uint64,
	) error

	// SubscriptionPrice returns the current subscription price.
	SubscriptionPrice() (uint64, error)

	// SubscriptionDuration returns the current subscription duration.
	SubscriptionDuration() (uint64, error)

	// Admin returns the current administrator principal.
	Admin() (ledger.Principal, error)

	// WithdrawFunds transfers the accumulated balance to the
	// administrator and returns the amount moved.
	WithdrawFunds(caller ledger.Principal) (uint64, error)

	// TransferAdministration hands the administrator role to a new
	// principal.
	TransferAdministration(
		caller ledger.Principal,
		newAdmin ledger.Principal,
	) error

	// Journal returns the ledger's notification journal.
	Journal() *journal.Journal
}
