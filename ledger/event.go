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

package ledger

import (
	"github.com/blinklabs-io/veilpost/event"
)

const (
	OrganizationRegisteredEventType      event.EventType = "ledger.organization.registered"
	OrganizationVerifiedEventType        event.EventType = "ledger.organization.verified"
	SubscriptionPurchasedEventType       event.EventType = "ledger.subscription.purchased"
	SubscriptionPriceUpdatedEventType    event.EventType = "ledger.subscription.price-updated"
	SubscriptionDurationUpdatedEventType event.EventType = "ledger.subscription.duration-updated"
	MerkleRootUpdatedEventType           event.EventType = "ledger.root.updated"
	PostSubmittedEventType               event.EventType = "ledger.post.submitted"
	PostConfirmedEventType               event.EventType = "ledger.post.confirmed"
	PostRejectedEventType                event.EventType = "ledger.post.rejected"
)

// Journal-only record types for administrative operations with no bus
// notification
const (
	fundsWithdrawnJournalType = "ledger.funds.withdrawn"
	administrationJournalType = "ledger.administration.transferred"
)

// OrganizationRegisteredEvent is emitted when a new organization registers
type OrganizationRegisteredEvent struct {
	Org         Principal `json:"org"`
	MetadataRef string    `json:"metadataRef"`
}

// OrganizationVerifiedEvent is emitted when an administrator changes an
// organization's verified flag
type OrganizationVerifiedEvent struct {
	Org    Principal `json:"org"`
	Status bool      `json:"status"`
}

// SubscriptionPurchasedEvent is emitted after a successful subscription
// payment
type SubscriptionPurchasedEvent struct {
	Org    Principal `json:"org"`
	NewEnd uint64    `json:"newEnd"`
}

// SubscriptionPriceUpdatedEvent is emitted when the administrator changes
// the global subscription price
type SubscriptionPriceUpdatedEvent struct {
	NewPrice uint64 `json:"newPrice"`
}

// SubscriptionDurationUpdatedEvent is emitted when the administrator
// changes the global subscription duration
type SubscriptionDurationUpdatedEvent struct {
	NewDuration uint64 `json:"newDuration"`
}

// MerkleRootUpdatedEvent is emitted when an organization's membership root
// is rotated
type MerkleRootUpdatedEvent struct {
	Org     Principal `json:"org"`
	NewRoot Digest    `json:"newRoot"`
}

// PostSubmittedEvent announces an anonymous post submission awaiting
// verification. The proof payload is opaque to the ledger.
type PostSubmittedEvent struct {
	Org            Principal `json:"org"`
	PostCommitment Digest    `json:"postCommitment"`
	NullifierHash  Digest    `json:"nullifierHash"`
	Proof          []byte    `json:"proof"`
	Timestamp      uint64    `json:"timestamp"`
}

// PostConfirmedEvent is emitted when a submission is confirmed and its
// nullifier permanently consumed
type PostConfirmedEvent struct {
	Org            Principal `json:"org"`
	PostCommitment Digest    `json:"postCommitment"`
	NullifierHash  Digest    `json:"nullifierHash"`
}

// PostRejectedEvent is emitted for audit when a submission is rejected.
// The nullifier remains available.
type PostRejectedEvent struct {
	Org            Principal `json:"org"`
	PostCommitment Digest    `json:"postCommitment"`
	NullifierHash  Digest    `json:"nullifierHash"`
}

// fundsWithdrawnRecord is the journal payload for a withdrawal
type fundsWithdrawnRecord struct {
	Admin  Principal `json:"admin"`
	Amount uint64    `json:"amount"`
}

// administrationTransferredRecord is the journal payload for an
// administration transfer
type administrationTransferredRecord struct {
	OldAdmin Principal `json:"oldAdmin"`
	NewAdmin Principal `json:"newAdmin"`
}
