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
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry   prometheus.Registerer
	logger         *slog.Logger
	dataDir        string
	blobPlugin     string
	metadataPlugin string
	// Ledger parameters used on first boot; stored values win afterwards
	admin                ledger.Principal
	confirmers           []ledger.Principal
	subscriptionPrice    uint64
	subscriptionDuration uint64
	// API configuration
	apiListenAddress string
	tokenKeyPath     string
	// Verifier configuration (empty verifying key path disables the
	// embedded verifier)
	verifierPrincipal ledger.Principal
	verifyingKeyPath  string
	poolCapacity      int
	tracing           bool
	tracingStdout     bool
	shutdownTimeout   time.Duration
}

func (n *Node) configValidate() error {
	if !n.config.admin.Valid() {
		return errors.New("no valid administrator principal configured")
	}
	for _, confirmer := range n.config.confirmers {
		if !confirmer.Valid() {
			return errors.New("invalid confirmer principal configured")
		}
	}
	if n.config.verifyingKeyPath != "" &&
		!n.config.verifierPrincipal.Valid() {
		return errors.New(
			"verifier enabled without a valid verifier principal",
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new veilpost config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithAdmin specifies the initial administrator principal. This is only
// used on first boot; afterwards the stored administrator wins (including
// any transfers)
func WithAdmin(admin ledger.Principal) ConfigOptionFunc {
	return func(c *Config) {
		c.admin = admin
	}
}

// WithConfirmers specifies the principals allowed to confirm or reject
// post submissions, in addition to the administrator
func WithConfirmers(confirmers ...ledger.Principal) ConfigOptionFunc {
	return func(c *Config) {
		c.confirmers = append(c.confirmers, confirmers...)
	}
}

// WithSubscriptionPrice specifies the initial subscription price. This is
// only used on first boot
func WithSubscriptionPrice(price uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.subscriptionPrice = price
	}
}

// WithSubscriptionDuration specifies the initial subscription duration in
// seconds. This is only used on first boot
func WithSubscriptionDuration(duration uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.subscriptionDuration = duration
	}
}

// WithApiListenAddress specifies the listen address for the REST API
// server. The default is ":3000"
func WithApiListenAddress(addr string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = addr
	}
}

// WithTokenKeyPath specifies the path to the API token signing key file
func WithTokenKeyPath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tokenKeyPath = path
	}
}

// WithVerifierPrincipal specifies the confirmer identity the embedded
// verifier acts under. It is added to the confirmer set automatically
func WithVerifierPrincipal(principal ledger.Principal) ConfigOptionFunc {
	return func(c *Config) {
		c.verifierPrincipal = principal
	}
}

// WithVerifyingKeyPath specifies the path to the groth16 verifying key
// file. An empty path disables the embedded verifier
func WithVerifyingKeyPath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.verifyingKeyPath = path
	}
}

// WithPoolCapacity sets the submission pool capacity (in submissions)
func WithPoolCapacity(capacity int) ConfigOptionFunc {
	return func(c *Config) {
		c.poolCapacity = capacity
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
