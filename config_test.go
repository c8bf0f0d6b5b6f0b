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
	"testing"
	"time"

	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Empty(t, cfg.dataDir)
	assert.Empty(t, cfg.apiListenAddress)
	assert.Zero(t, cfg.shutdownTimeout)
}

func TestNewConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithAdmin("admin-1"),
		WithConfirmers("verifier-1", "verifier-2"),
		WithSubscriptionPrice(500),
		WithSubscriptionDuration(2592000),
		WithApiListenAddress("localhost:4000"),
		WithDatabasePath("/tmp/data"),
		WithShutdownTimeout(5*time.Second),
	)
	assert.Equal(t, ledger.Principal("admin-1"), cfg.admin)
	assert.Equal(
		t,
		[]ledger.Principal{"verifier-1", "verifier-2"},
		cfg.confirmers,
	)
	assert.Equal(t, uint64(500), cfg.subscriptionPrice)
	assert.Equal(t, uint64(2592000), cfg.subscriptionDuration)
	assert.Equal(t, "localhost:4000", cfg.apiListenAddress)
	assert.Equal(t, "/tmp/data", cfg.dataDir)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
}

func TestNewNodeValidation(t *testing.T) {
	// Missing admin
	_, err := New(NewConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "administrator")

	// Verifier enabled without a principal
	_, err = New(NewConfig(
		WithAdmin("admin-1"),
		WithVerifyingKeyPath("/tmp/vk"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifier")

	// Valid config
	n, err := New(NewConfig(WithAdmin("admin-1")))
	require.NoError(t, err)
	require.NotNil(t, n)
	n.eventBus.Stop()
}
