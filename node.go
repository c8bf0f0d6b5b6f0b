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

package veilpost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/veilpost/api"
	"github.com/blinklabs-io/veilpost/database"
	"github.com/blinklabs-io/veilpost/event"
	"github.com/blinklabs-io/veilpost/keystore"
	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/blinklabs-io/veilpost/postpool"
	"github.com/blinklabs-io/veilpost/verifier"
)

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	ledger        *ledger.Ledger
	postPool      *postpool.PostPool
	verifier      *verifier.Verifier
	keystore      *keystore.KeyStore
	api           *api.Api
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	n := &Node{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return n, nil
}

// Ledger returns the node's subscription ledger
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

func (n *Node) Run(ctx context.Context) error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	dbConfig := &database.Config{
		DataDir:        n.config.dataDir,
		Logger:         n.config.logger,
		PromRegistry:   n.config.promRegistry,
		BlobPlugin:     n.config.blobPlugin,
		MetadataPlugin: n.config.metadataPlugin,
	}
	db, err := database.New(dbConfig)
	if db == nil {
		n.config.logger.Error(
			"failed to create database",
			"error",
			"empty database returned",
		)
		return errors.New("empty database returned")
	}
	n.db = db
	if err != nil {
		var dbErr database.CommitTimestampError
		if !errors.As(err, &dbErr) {
			return fmt.Errorf("failed to open database: %w", err)
		}
		// The stores disagree about the last commit; the journal is the
		// source of truth, so refuse to run rather than guess
		return fmt.Errorf(
			"database stores are out of sync, restore from a consistent copy: %w",
			err,
		)
	}
	// Load signing keys
	n.keystore = keystore.NewKeyStore(keystore.KeyStoreConfig{
		Logger:        n.config.logger,
		TokenSKeyPath: n.config.tokenKeyPath,
	})
	if n.config.tokenKeyPath != "" {
		if err := n.keystore.LoadKeys(); err != nil {
			return fmt.Errorf("failed to load keys: %w", err)
		}
	}
	// Load ledger
	confirmers := n.config.confirmers
	if n.config.verifierPrincipal.Valid() {
		confirmers = append(confirmers, n.config.verifierPrincipal)
	}
	l, err := ledger.NewLedger(
		ledger.LedgerConfig{
			Logger:               n.config.logger,
			EventBus:             n.eventBus,
			Database:             n.db,
			PromRegistry:         n.config.promRegistry,
			Admin:                n.config.admin,
			Confirmers:           confirmers,
			Settlement:           ledger.NewMemorySettlement(),
			SubscriptionPrice:    n.config.subscriptionPrice,
			SubscriptionDuration: n.config.subscriptionDuration,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	n.ledger = l
	// Initialize submission pool
	n.postPool = postpool.NewPostPool(postpool.PostPoolConfig{
		Logger:       n.config.logger,
		EventBus:     n.eventBus,
		PromRegistry: n.config.promRegistry,
		PoolCapacity: n.config.poolCapacity,
	})
	// Start the embedded verifier when a verifying key is configured
	if n.config.verifyingKeyPath != "" {
		v, err := verifier.NewVerifier(
			verifier.VerifierConfig{
				Logger:           n.config.logger,
				PromRegistry:     n.config.promRegistry,
				Pool:             n.postPool,
				Ledger:           n.ledger,
				Principal:        n.config.verifierPrincipal,
				VerifyingKeyFile: n.config.verifyingKeyPath,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to load verifier: %w", err)
		}
		n.verifier = v
		if err := n.verifier.Start(); err != nil {
			return fmt.Errorf("failed to start verifier: %w", err)
		}
	}
	// Start the API server
	n.api = api.New(
		api.ApiConfig{
			ListenAddress: n.config.apiListenAddress,
		},
		n.ledger,
		n.keystore,
		n.config.logger,
	)
	if err := n.api.Start(ctx); err != nil {
		return err
	}

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		return n.Stop()
	case <-n.done:
	}
	return nil
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	n.config.logger.Debug("shutdown phase 1: stopping new work")

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Drain in-flight submissions
	n.config.logger.Debug("shutdown phase 2: draining submissions")

	if n.verifier != nil {
		if stopErr := n.verifier.Stop(); stopErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("verifier shutdown: %w", stopErr),
			)
		}
	}

	if n.postPool != nil {
		n.postPool.Stop()
	}

	// Phase 3: Flush state and close database
	n.config.logger.Debug("shutdown phase 3: flushing state")

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("database close: %w", closeErr),
			)
		}
	}

	// Phase 4: Cleanup resources
	n.config.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
