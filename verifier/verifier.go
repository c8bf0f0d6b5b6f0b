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

package verifier

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/blinklabs-io/veilpost/postpool"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LedgerClient is the slice of the ledger the verifier needs: reading the
// organization's published root and confirming or rejecting submissions
// under its own principal.
type LedgerClient interface {
	Organization(id ledger.Principal) (ledger.OrganizationRecord, error)
	ConfirmPost(
		caller ledger.Principal,
		orgId ledger.Principal,
		postCommitment ledger.Digest,
		nullifierHash ledger.Digest,
	) error
	RejectPost(
		caller ledger.Principal,
		orgId ledger.Principal,
		postCommitment ledger.Digest,
		nullifierHash ledger.Digest,
	) error
}

type VerifierConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Pool         *postpool.PostPool
	Ledger       LedgerClient
	// Principal is the confirmer identity the verifier acts under. It
	// must be in the ledger's configured confirmer set.
	Principal ledger.Principal
	// VerifyingKey takes precedence over VerifyingKeyFile when set
	VerifyingKey     groth16.VerifyingKey
	VerifyingKeyFile string
}

// Verifier consumes the submission pool, checks membership proofs against
// each organization's published root, and drives the ledger's
// confirm/reject workflow.
type Verifier struct {
	config  VerifierConfig
	logger  *slog.Logger
	vk      groth16.VerifyingKey
	metrics struct {
		proofsChecked *prometheus.CounterVec
	}
	consumerId uuid.UUID
	consumer   *postpool.PoolConsumer
	startOnce  sync.Once
	stopOnce   sync.Once
	doneChan   chan struct{}
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Pool == nil {
		return nil, errors.New("no submission pool provided")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("no ledger client provided")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	v := &Verifier{
		config:   cfg,
		logger:   logger.With("component", "verifier"),
		vk:       cfg.VerifyingKey,
		doneChan: make(chan struct{}),
	}
	if v.vk == nil {
		if cfg.VerifyingKeyFile == "" {
			return nil, errors.New("no verifying key provided")
		}
		vk, err := LoadVerifyingKey(cfg.VerifyingKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load verifying key: %w", err)
		}
		v.vk = vk
	}
	promautoFactory := promauto.With(cfg.PromRegistry)
	v.metrics.proofsChecked = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veilpost_verifier_proofs_checked_total",
			Help: "membership proofs checked by outcome",
		},
		[]string{"outcome"},
	)
	return v, nil
}

// Start begins draining the submission pool in a background goroutine
func (v *Verifier) Start() error {
	v.startOnce.Do(func() {
		v.consumerId, v.consumer = v.config.Pool.AddConsumer()
		go v.run()
	})
	return nil
}

// Stop detaches from the submission pool and waits for the worker to exit
func (v *Verifier) Stop() error {
	v.stopOnce.Do(func() {
		if v.consumer == nil {
			// Never started
			return
		}
		v.config.Pool.RemoveConsumer(v.consumerId)
		<-v.doneChan
	})
	return nil
}

func (v *Verifier) run() {
	defer close(v.doneChan)
	for {
		sub := v.consumer.NextSubmission(true)
		if sub == nil {
			// Pool shut down or consumer removed
			return
		}
		v.process(sub)
		v.config.Pool.RemoveSubmission(sub.ID)
		v.consumer.RemoveFromCache(sub.ID)
	}
}

func (v *Verifier) process(sub *postpool.Submission) {
	org, err := v.config.Ledger.Organization(sub.Org)
	if err != nil {
		v.logger.Error(
			"failed to load organization",
			"org", sub.Org,
			"error", err,
		)
		return
	}
	if !org.Exists {
		// Submissions are only accepted for existing orgs; the org cannot
		// have been deleted since, so this is unreachable outside of
		// storage corruption
		v.logger.Error("organization missing for submission", "org", sub.Org)
		return
	}
	verifyErr := v.VerifyProof(
		sub.Proof,
		org.MembershipRoot,
		sub.NullifierHash,
		sub.PostCommitment,
	)
	if verifyErr == nil {
		v.metrics.proofsChecked.WithLabelValues("confirmed").Inc()
		if err := v.config.Ledger.ConfirmPost(
			v.config.Principal,
			sub.Org,
			sub.PostCommitment,
			sub.NullifierHash,
		); err != nil {
			v.logger.Error(
				"failed to confirm post",
				"org", sub.Org,
				"nullifier", sub.NullifierHash.String(),
				"error", err,
			)
		}
		return
	}
	v.metrics.proofsChecked.WithLabelValues("rejected").Inc()
	v.logger.Info(
		"membership proof rejected",
		"org", sub.Org,
		"nullifier", sub.NullifierHash.String(),
		"error", verifyErr,
	)
	if err := v.config.Ledger.RejectPost(
		v.config.Principal,
		sub.Org,
		sub.PostCommitment,
		sub.NullifierHash,
	); err != nil {
		v.logger.Error(
			"failed to reject post",
			"org", sub.Org,
			"nullifier", sub.NullifierHash.String(),
			"error", err,
		)
	}
}

// VerifyProof checks a serialized membership proof against the public
// inputs
func (v *Verifier) VerifyProof(
	proofBytes []byte,
	root ledger.Digest,
	nullifierHash ledger.Digest,
	postCommitment ledger.Digest,
) error {
	assignment := &MembershipCircuit{
		Root:           digestToValue(root),
		NullifierHash:  digestToValue(nullifierHash),
		PostCommitment: digestToValue(postCommitment),
	}
	w, err := frontend.NewWitness(
		assignment,
		ecc.BN254.ScalarField(),
		frontend.PublicOnly(),
	)
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}
	if err := groth16.Verify(proof, v.vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}
