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

// Package api implements the REST API server for the subscription ledger.
// Mutating operations are authenticated with EdDSA-signed bearer tokens
// whose subject claim carries the caller principal.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/blinklabs-io/veilpost/keystore"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ApiConfig holds configuration for the API server.
type ApiConfig struct {
	ListenAddress string
}

// Api is the REST API server.
type Api struct {
	config     ApiConfig
	logger     *slog.Logger
	ledger     LedgerService
	keystore   *keystore.KeyStore
	httpServer *http.Server
	mu         sync.Mutex
}

// New creates a new API server instance.
func New(
	cfg ApiConfig,
	ledgerSvc LedgerService,
	ks *keystore.KeyStore,
	logger *slog.Logger,
) *Api {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":3000"
	}
	return &Api{
		config:   cfg,
		logger:   logger,
		ledger:   ledgerSvc,
		keystore: ks,
	}
}

// Handler builds the full route table. Mutating routes go through the
// bearer-token middleware; reads and post submission are public.
func (a *Api) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)

	// Organization registry
	mux.Handle(
		"POST /api/v1/organizations",
		a.requireAuth(a.handleRegister),
	)
	mux.HandleFunc(
		"GET /api/v1/organizations/{id}",
		a.handleOrganization,
	)
	mux.HandleFunc(
		"GET /api/v1/organizations/{id}/subscription",
		a.handleSubscriptionStatus,
	)
	mux.HandleFunc(
		"GET /api/v1/organizations/{id}/nullifiers/{hash}",
		a.handleNullifier,
	)

	// Subscription and root maintenance
	mux.Handle(
		"POST /api/v1/subscription/purchase",
		a.requireAuth(a.handlePurchase),
	)
	mux.Handle(
		"PUT /api/v1/organizations/root",
		a.requireAuth(a.handleRootUpdate),
	)
	mux.Handle(
		"PUT /api/v1/organizations/{id}/root",
		a.requireAuth(a.handleRootUpdateForOrg),
	)
	mux.Handle(
		"PUT /api/v1/organizations/{id}/verified",
		a.requireAuth(a.handleSetVerified),
	)

	// Anonymous posting workflow
	mux.HandleFunc("POST /api/v1/posts", a.handleSubmitPost)
	mux.Handle(
		"POST /api/v1/posts/confirm",
		a.requireAuth(a.handleConfirmPost),
	)
	mux.Handle(
		"POST /api/v1/posts/reject",
		a.requireAuth(a.handleRejectPost),
	)

	// Administration
	mux.HandleFunc("GET /api/v1/params", a.handleParams)
	mux.Handle(
		"PUT /api/v1/params/price",
		a.requireAuth(a.handleUpdatePrice),
	)
	mux.Handle(
		"PUT /api/v1/params/duration",
		a.requireAuth(a.handleUpdateDuration),
	)
	mux.Handle(
		"POST /api/v1/admin/withdraw",
		a.requireAuth(a.handleWithdraw),
	)
	mux.Handle(
		"POST /api/v1/admin/transfer",
		a.requireAuth(a.handleTransferAdmin),
	)

	// Notification journal
	mux.HandleFunc("GET /api/v1/journal", a.handleJournal)

	// Wrap with h2c to support HTTP/2 without TLS
	return h2c.NewHandler(mux, &http2.Server{})
}

// Start starts the HTTP server in a background goroutine.
func (a *Api) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}

	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	// Start the server with deterministic error detection
	if err := a.startServer(server); err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}

	a.logger.Info(
		"API listener started on " + a.config.ListenAddress,
	)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()

		if srv != nil {
			a.logger.Debug(
				"context cancelled, shutting down API server",
			)
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error(
					"failed to shutdown API server on context cancellation",
					"error", err,
				)
			}
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (a *Api) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()

	if srv != nil {
		a.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf(
				"failed to shutdown API server: %w",
				err,
			)
		}
	}
	return nil
}

// startServer starts the HTTP server with deterministic error detection.
// It binds the listening socket first so port conflicts are detected
// immediately, then serves in a background goroutine.
func (a *Api) startServer(server *http.Server) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf(
			"failed to listen for API server: %w",
			err,
		)
	}
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	return nil
}
