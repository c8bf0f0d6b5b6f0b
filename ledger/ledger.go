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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/veilpost/database"
	"github.com/blinklabs-io/veilpost/database/models"
	"github.com/blinklabs-io/veilpost/database/types"
	"github.com/blinklabs-io/veilpost/event"
	"github.com/blinklabs-io/veilpost/journal"
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerConfig configures a Ledger instance
type LedgerConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Database     *database.Database
	PromRegistry prometheus.Registerer
	// Admin is the initial Administrator principal. It is persisted at
	// first boot; afterwards the stored value wins so administration
	// transfers survive restarts.
	Admin Principal
	// Confirmers are additional principals allowed to confirm or reject
	// post submissions
	Confirmers           []Principal
	Settlement           SettlementBackend
	SubscriptionPrice    uint64
	SubscriptionDuration uint64
	// TimeFunc overrides the clock, mainly for tests
	TimeFunc func() time.Time
}

// Ledger is the access-control and subscription state machine. Every
// public operation executes atomically and serially: a single mutex guards
// all mutations, and each mutation is applied inside one database
// transaction spanning the metadata store and the notification journal.
// Events are published to the bus only after the transaction commits.
type Ledger struct {
	config     LedgerConfig
	logger     *slog.Logger
	db         *database.Database
	eventBus   *event.EventBus
	journal    *journal.Journal
	metrics    *ledgerMetrics
	confirmers map[Principal]struct{}
	timeFunc   func() time.Time
	mutex      sync.Mutex
}

// pendingEvent is a bus notification held back until the transaction
// commits
type pendingEvent struct {
	eventType event.EventType
	data      any
}

func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, errors.New("no database provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	timeFunc := cfg.TimeFunc
	if timeFunc == nil {
		timeFunc = time.Now
	}
	l := &Ledger{
		config:     cfg,
		logger:     logger.With("component", "ledger"),
		db:         cfg.Database,
		eventBus:   cfg.EventBus,
		journal:    journal.New(cfg.Database, logger),
		confirmers: make(map[Principal]struct{}),
		timeFunc:   timeFunc,
	}
	for _, confirmer := range cfg.Confirmers {
		l.confirmers[confirmer] = struct{}{}
	}
	if cfg.PromRegistry != nil {
		l.metrics = &ledgerMetrics{}
		l.metrics.init(cfg.PromRegistry)
	}
	if err := l.initParams(); err != nil {
		return nil, err
	}
	return l, nil
}

// initParams persists the initial service parameters on first boot. Stored
// parameters take precedence over configuration on subsequent boots.
func (l *Ledger) initParams() error {
	return l.db.Transaction(true).Do(func(txn *database.Txn) error {
		params, err := l.db.GetLedgerParams(txn)
		if err != nil {
			return err
		}
		if params != nil {
			if l.metrics != nil {
				l.metrics.balance.Set(float64(params.Balance))
			}
			return nil
		}
		if !l.config.Admin.Valid() {
			return fmt.Errorf(
				"%w: administrator principal required at first boot",
				ErrInvalidPrincipal,
			)
		}
		return l.db.SetLedgerParams(
			&models.LedgerParams{
				Admin:                string(l.config.Admin),
				SubscriptionPrice:    types.Uint64(l.config.SubscriptionPrice),
				SubscriptionDuration: types.Uint64(l.config.SubscriptionDuration),
				Balance:              0,
			},
			txn,
		)
	})
}

// Journal returns the notification journal for replay access
func (l *Ledger) Journal() *journal.Journal {
	return l.journal
}

func (l *Ledger) now() uint64 {
	t := l.timeFunc().Unix()
	if t < 0 {
		return 0
	}
	return uint64(t)
}

// emit appends the notification to the journal within the transaction and
// queues it for bus publication after commit
func (l *Ledger) emit(
	txn *database.Txn,
	pending *[]pendingEvent,
	eventType event.EventType,
	data any,
) (uint64, error) {
	seq, err := l.journal.Append(txn, string(eventType), l.now(), data)
	if err != nil {
		return 0, err
	}
	*pending = append(*pending, pendingEvent{eventType: eventType, data: data})
	return seq, nil
}

func (l *Ledger) publish(pending []pendingEvent) {
	if l.eventBus == nil {
		return
	}
	for _, evt := range pending {
		l.eventBus.Publish(
			evt.eventType,
			event.NewEvent(evt.eventType, evt.data),
		)
	}
}

// mustParams loads the service parameters inside the transaction
func (l *Ledger) mustParams(txn *database.Txn) (*models.LedgerParams, error) {
	params, err := l.db.GetLedgerParams(txn)
	if err != nil {
		return nil, err
	}
	if params == nil {
		return nil, errors.New("service parameters not initialized")
	}
	return params, nil
}

func (l *Ledger) checkAdmin(txn *database.Txn, caller Principal) (*models.LedgerParams, error) {
	params, err := l.mustParams(txn)
	if err != nil {
		return nil, err
	}
	if string(caller) != params.Admin {
		return nil, ErrNotAuthorized
	}
	return params, nil
}

// checkConfirmAuthority accepts the Administrator or any configured
// confirmer principal
func (l *Ledger) checkConfirmAuthority(txn *database.Txn, caller Principal) error {
	params, err := l.mustParams(txn)
	if err != nil {
		return err
	}
	if string(caller) == params.Admin {
		return nil
	}
	if _, ok := l.confirmers[caller]; ok {
		return nil
	}
	return ErrNotAuthorized
}

// Register creates an organization record for the caller. The metadata
// reference is immutable after registration.
func (l *Ledger) Register(caller Principal, metadataRef string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !caller.Valid() {
		return ErrInvalidPrincipal
	}
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		existing, err := l.db.GetOrganization(string(caller), txn)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyRegistered
		}
		seq, err := l.emit(
			txn,
			&pending,
			OrganizationRegisteredEventType,
			OrganizationRegisteredEvent{
				Org:         caller,
				MetadataRef: metadataRef,
			},
		)
		if err != nil {
			return err
		}
		return l.db.AddOrganization(
			&models.Organization{
				Principal:       string(caller),
				MetadataRef:     metadataRef,
				MembershipRoot:  ZeroDigest.Bytes(),
				SubscriptionEnd: 0,
				Verified:        false,
				AddedSeq:        seq,
			},
			txn,
		)
	})
	if l.metrics != nil {
		l.metrics.observeOp("register", err)
		if err == nil {
			l.metrics.organizationsTotal.Inc()
		}
	}
	if err != nil {
		return err
	}
	l.logger.Info("organization registered", "org", caller)
	l.publish(pending)
	return nil
}

// Organization returns the record for the given principal. Unknown
// principals yield a zero record with Exists false rather than an error.
func (l *Ledger) Organization(id Principal) (OrganizationRecord, error) {
	var ret OrganizationRecord
	org, err := l.db.GetOrganization(string(id), nil)
	if err != nil {
		return ret, err
	}
	if org == nil {
		return ret, nil
	}
	root, err := NewDigest(org.MembershipRoot)
	if err != nil {
		return ret, err
	}
	ret = OrganizationRecord{
		Principal:       Principal(org.Principal),
		MetadataRef:     org.MetadataRef,
		MembershipRoot:  root,
		SubscriptionEnd: uint64(org.SubscriptionEnd),
		Exists:          true,
		Verified:        org.Verified,
	}
	return ret, nil
}

// PurchaseSubscription extends or resets the caller's subscription. An
// active subscription stacks (newEnd = old end + duration); a lapsed or
// never-started one restarts from now. The payment is credited to the
// accumulated balance in the same transaction.
func (l *Ledger) PurchaseSubscription(
	caller Principal,
	payment uint64,
) (uint64, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var newEnd uint64
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		org, err := l.db.GetOrganization(string(caller), txn)
		if err != nil {
			return err
		}
		if org == nil {
			return ErrNotRegistered
		}
		params, err := l.mustParams(txn)
		if err != nil {
			return err
		}
		if payment != uint64(params.SubscriptionPrice) {
			return ErrIncorrectPayment
		}
		now := l.now()
		duration := uint64(params.SubscriptionDuration)
		if now <= uint64(org.SubscriptionEnd) {
			// Still active: stack onto the current expiry
			newEnd = uint64(org.SubscriptionEnd) + duration
		} else {
			newEnd = now + duration
		}
		org.SubscriptionEnd = types.Uint64(newEnd)
		if err := l.db.UpdateOrganization(org, txn); err != nil {
			return err
		}
		params.Balance += types.Uint64(payment)
		if err := l.db.SetLedgerParams(params, txn); err != nil {
			return err
		}
		if l.metrics != nil {
			l.metrics.balance.Set(float64(params.Balance))
		}
		_, err = l.emit(
			txn,
			&pending,
			SubscriptionPurchasedEventType,
			SubscriptionPurchasedEvent{
				Org:    caller,
				NewEnd: newEnd,
			},
		)
		return err
	})
	if l.metrics != nil {
		l.metrics.observeOp("purchase_subscription", err)
	}
	if err != nil {
		return 0, err
	}
	l.logger.Info(
		"subscription purchased",
		"org", caller,
		"new_end", newEnd,
	)
	l.publish(pending)
	return newEnd, nil
}

// HasActiveSubscription returns whether the organization's subscription
// covers the current instant. The expiry boundary is inclusive. Unknown
// organizations are never active.
func (l *Ledger) HasActiveSubscription(id Principal) (bool, error) {
	org, err := l.db.GetOrganization(string(id), nil)
	if err != nil {
		return false, err
	}
	if org == nil {
		return false, nil
	}
	return org.HasActiveSubscription(l.now()), nil
}

// UpdateMerkleRoot rotates the caller's own membership root
func (l *Ledger) UpdateMerkleRoot(caller Principal, newRoot Digest) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		org, err := l.db.GetOrganization(string(caller), txn)
		if err != nil {
			return err
		}
		if org == nil {
			return ErrNotRegistered
		}
		return l.applyRootUpdate(txn, &pending, org, newRoot)
	})
	if l.metrics != nil {
		l.metrics.observeOp("update_merkle_root", err)
	}
	if err != nil {
		return err
	}
	l.publish(pending)
	return nil
}

// UpdateMerkleRootForOrg rotates the membership root of a target
// organization on behalf of the Administrator
func (l *Ledger) UpdateMerkleRootForOrg(
	caller Principal,
	orgId Principal,
	newRoot Digest,
) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		if _, err := l.checkAdmin(txn, caller); err != nil {
			return err
		}
		org, err := l.db.GetOrganization(string(orgId), txn)
		if err != nil {
			return err
		}
		if org == nil {
			return ErrOrgNotFound
		}
		return l.applyRootUpdate(txn, &pending, org, newRoot)
	})
	if l.metrics != nil {
		l.metrics.observeOp("update_merkle_root_for_org", err)
	}
	if err != nil {
		return err
	}
	l.publish(pending)
	return nil
}

// applyRootUpdate overwrites the membership root unconditionally. There is
// no staleness window or previous-root check.
func (l *Ledger) applyRootUpdate(
	txn *database.Txn,
	pending *[]pendingEvent,
	org *models.Organization,
	newRoot Digest,
) error {
	org.MembershipRoot = newRoot.Bytes()
	if err := l.db.UpdateOrganization(org, txn); err != nil {
		return err
	}
	_, err := l.emit(
		txn,
		pending,
		MerkleRootUpdatedEventType,
		MerkleRootUpdatedEvent{
			Org:     Principal(org.Principal),
			NewRoot: newRoot,
		},
	)
	if err != nil {
		return err
	}
	l.logger.Info(
		"membership root updated",
		"org", org.Principal,
		"root", newRoot.String(),
	)
	return nil
}

// SubmitPost announces an anonymous post submission. The ledger state is
// not changed: the submission only enters the notification stream, where
// the verifier collaborator picks it up. The proof payload is forwarded
// opaquely.
func (l *Ledger) SubmitPost(
	orgId Principal,
	postCommitment Digest,
	nullifierHash Digest,
	proof []byte,
) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		org, err := l.db.GetOrganization(string(orgId), txn)
		if err != nil {
			return err
		}
		if org == nil {
			return ErrOrgNotFound
		}
		// Early replay check. Confirm re-checks under the same guard, so
		// this only short-circuits submissions that can never succeed.
		used, err := l.db.GetNullifier(
			string(orgId),
			nullifierHash.Bytes(),
			txn,
		)
		if err != nil {
			return err
		}
		if used != nil {
			return ErrNullifierAlreadyUsed
		}
		_, err = l.emit(
			txn,
			&pending,
			PostSubmittedEventType,
			PostSubmittedEvent{
				Org:            orgId,
				PostCommitment: postCommitment,
				NullifierHash:  nullifierHash,
				Proof:          proof,
				Timestamp:      l.now(),
			},
		)
		return err
	})
	if l.metrics != nil {
		l.metrics.observeOp("submit_post", err)
	}
	if err != nil {
		return err
	}
	l.publish(pending)
	return nil
}

// ConfirmPost permanently consumes the nullifier for the organization.
// This is the sole mutation point of the anti-replay guarantee: the
// used-check and the mark happen inside one transaction under the
// operation mutex.
func (l *Ledger) ConfirmPost(
	caller Principal,
	orgId Principal,
	postCommitment Digest,
	nullifierHash Digest,
) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := l.checkConfirmAuthority(txn, caller); err != nil {
			return err
		}
		org, err := l.db.GetOrganization(string(orgId), txn)
		if err != nil {
			return err
		}
		if org == nil {
			return ErrOrgNotFound
		}
		used, err := l.db.GetNullifier(
			string(orgId),
			nullifierHash.Bytes(),
			txn,
		)
		if err != nil {
			return err
		}
		if used != nil {
			return ErrNullifierAlreadyUsed
		}
		seq, err := l.emit(
			txn,
			&pending,
			PostConfirmedEventType,
			PostConfirmedEvent{
				Org:            orgId,
				PostCommitment: postCommitment,
				NullifierHash:  nullifierHash,
			},
		)
		if err != nil {
			return err
		}
		return l.db.AddNullifier(
			&models.Nullifier{
				OrgPrincipal: string(orgId),
				Nullifier:    nullifierHash.Bytes(),
				AddedSeq:     seq,
			},
			txn,
		)
	})
	if l.metrics != nil {
		l.metrics.observeOp("confirm_post", err)
		if err == nil {
			l.metrics.nullifiersTotal.Inc()
		}
	}
	if err != nil {
		return err
	}
	l.logger.Info(
		"post confirmed",
		"org", orgId,
		"nullifier", nullifierHash.String(),
	)
	l.publish(pending)
	return nil
}

// RejectPost records a rejected submission for audit. No ledger state
// changes: the nullifier remains available for a later submission.
func (l *Ledger) RejectPost(
	caller Principal,
	orgId Principal,
	postCommitment Digest,
	nullifierHash Digest,
) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		if err := l.checkConfirmAuthority(txn, caller); err != nil {
			return err
		}
		org, err := l.db.GetOrganization(string(orgId), txn)
		if err != nil {
			return err
		}
		if org == nil {
			return ErrOrgNotFound
		}
		_, err = l.emit(
			txn,
			&pending,
			PostRejectedEventType,
			PostRejectedEvent{
				Org:            orgId,
				PostCommitment: postCommitment,
				NullifierHash:  nullifierHash,
			},
		)
		return err
	})
	if l.metrics != nil {
		l.metrics.observeOp("reject_post", err)
	}
	if err != nil {
		return err
	}
	l.logger.Info(
		"post rejected",
		"org", orgId,
		"nullifier", nullifierHash.String(),
	)
	l.publish(pending)
	return nil
}

// IsNullifierUsed reports whether the nullifier has been consumed for the
// organization
func (l *Ledger) IsNullifierUsed(
	orgId Principal,
	nullifierHash Digest,
) (bool, error) {
	used, err := l.db.GetNullifier(string(orgId), nullifierHash.Bytes(), nil)
	if err != nil {
		return false, err
	}
	return used != nil, nil
}

// SetVerified updates the verified flag of a target organization
func (l *Ledger) SetVerified(
	caller Principal,
	orgId Principal,
	status bool,
) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		if _, err := l.checkAdmin(txn, caller); err != nil {
			return err
		}
		org, err := l.db.GetOrganization(string(orgId), txn)
		if err != nil {
			return err
		}
		if org == nil {
			return ErrOrgNotFound
		}
		org.Verified = status
		if err := l.db.UpdateOrganization(org, txn); err != nil {
			return err
		}
		_, err = l.emit(
			txn,
			&pending,
			OrganizationVerifiedEventType,
			OrganizationVerifiedEvent{
				Org:    orgId,
				Status: status,
			},
		)
		return err
	})
	if l.metrics != nil {
		l.metrics.observeOp("set_verified", err)
	}
	if err != nil {
		return err
	}
	l.publish(pending)
	return nil
}

// UpdateSubscriptionPrice overwrites the global subscription price. Only
// future purchases are affected.
func (l *Ledger) UpdateSubscriptionPrice(
	caller Principal,
	newPrice uint64,
) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		params, err := l.checkAdmin(txn, caller)
		if err != nil {
			return err
		}
		params.SubscriptionPrice = types.Uint64(newPrice)
		if err := l.db.SetLedgerParams(params, txn); err != nil {
			return err
		}
		_, err = l.emit(
			txn,
			&pending,
			SubscriptionPriceUpdatedEventType,
			SubscriptionPriceUpdatedEvent{NewPrice: newPrice},
		)
		return err
	})
	if l.metrics != nil {
		l.metrics.observeOp("update_subscription_price", err)
	}
	if err != nil {
		return err
	}
	l.publish(pending)
	return nil
}

// UpdateSubscriptionDuration overwrites the global subscription duration.
// Only future purchases are affected.
func (l *Ledger) UpdateSubscriptionDuration(
	caller Principal,
	newDuration uint64,
) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var pending []pendingEvent
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		params, err := l.checkAdmin(txn, caller)
		if err != nil {
			return err
		}
		params.SubscriptionDuration = types.Uint64(newDuration)
		if err := l.db.SetLedgerParams(params, txn); err != nil {
			return err
		}
		_, err = l.emit(
			txn,
			&pending,
			SubscriptionDurationUpdatedEventType,
			SubscriptionDurationUpdatedEvent{NewDuration: newDuration},
		)
		return err
	})
	if l.metrics != nil {
		l.metrics.observeOp("update_subscription_duration", err)
	}
	if err != nil {
		return err
	}
	l.publish(pending)
	return nil
}

// SubscriptionPrice returns the current global subscription price
func (l *Ledger) SubscriptionPrice() (uint64, error) {
	params, err := l.db.GetLedgerParams(nil)
	if err != nil {
		return 0, err
	}
	if params == nil {
		return 0, errors.New("service parameters not initialized")
	}
	return uint64(params.SubscriptionPrice), nil
}

// SubscriptionDuration returns the current global subscription duration in
// seconds
func (l *Ledger) SubscriptionDuration() (uint64, error) {
	params, err := l.db.GetLedgerParams(nil)
	if err != nil {
		return 0, err
	}
	if params == nil {
		return 0, errors.New("service parameters not initialized")
	}
	return uint64(params.SubscriptionDuration), nil
}

// Admin returns the current Administrator principal
func (l *Ledger) Admin() (Principal, error) {
	params, err := l.db.GetLedgerParams(nil)
	if err != nil {
		return "", err
	}
	if params == nil {
		return "", errors.New("service parameters not initialized")
	}
	return Principal(params.Admin), nil
}

// WithdrawFunds transfers the entire accumulated balance to the
// Administrator through the settlement backend. The balance is zeroed only
// when the transfer succeeds; a failed transfer leaves it untouched and is
// not retried.
func (l *Ledger) WithdrawFunds(caller Principal) (uint64, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var amount uint64
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		params, err := l.checkAdmin(txn, caller)
		if err != nil {
			return err
		}
		amount = uint64(params.Balance)
		if amount == 0 {
			return nil
		}
		if l.config.Settlement == nil {
			return fmt.Errorf("%w: no settlement backend configured", ErrTransferFailed)
		}
		if err := l.config.Settlement.Transfer(Principal(params.Admin), amount); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
		params.Balance = 0
		if err := l.db.SetLedgerParams(params, txn); err != nil {
			return err
		}
		if l.metrics != nil {
			l.metrics.balance.Set(0)
		}
		_, err = l.journal.Append(
			txn,
			fundsWithdrawnJournalType,
			l.now(),
			fundsWithdrawnRecord{
				Admin:  Principal(params.Admin),
				Amount: amount,
			},
		)
		return err
	})
	if l.metrics != nil {
		l.metrics.observeOp("withdraw_funds", err)
	}
	if err != nil {
		return 0, err
	}
	l.logger.Info("funds withdrawn", "amount", amount)
	return amount, nil
}

// TransferAdministration replaces the Administrator outright. There is no
// acceptance handshake: a transfer to an unreachable principal is
// irrecoverable by design of the original interface.
func (l *Ledger) TransferAdministration(
	caller Principal,
	newAdmin Principal,
) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !newAdmin.Valid() {
		return ErrInvalidPrincipal
	}
	err := l.db.Transaction(true).Do(func(txn *database.Txn) error {
		params, err := l.checkAdmin(txn, caller)
		if err != nil {
			return err
		}
		oldAdmin := Principal(params.Admin)
		params.Admin = string(newAdmin)
		if err := l.db.SetLedgerParams(params, txn); err != nil {
			return err
		}
		_, err = l.journal.Append(
			txn,
			administrationJournalType,
			l.now(),
			administrationTransferredRecord{
				OldAdmin: oldAdmin,
				NewAdmin: newAdmin,
			},
		)
		return err
	})
	if l.metrics != nil {
		l.metrics.observeOp("transfer_administration", err)
	}
	if err != nil {
		return err
	}
	l.logger.Info("administration transferred", "new_admin", newAdmin)
	return nil
}
