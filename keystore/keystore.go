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

// Package keystore manages the node's signing material: the Ed25519 key
// used to issue and validate API bearer tokens. Key files are JSON
// envelopes loaded with strict permission checks.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors returned by KeyStore operations.
var (
	ErrKeysNotLoaded    = errors.New("keys not loaded")
	ErrInsecureFileMode = errors.New("insecure file permissions")
)

// KeyStoreConfig holds configuration for the KeyStore.
type KeyStoreConfig struct {
	// Logger for keystore operations.
	Logger *slog.Logger
	// TokenSKeyPath is the path to the token signing key file.
	TokenSKeyPath string
}

// KeyStore holds the node's loaded signing keys.
type KeyStore struct {
	mutex      sync.RWMutex
	config     KeyStoreConfig
	logger     *slog.Logger
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
}

// NewKeyStore creates a new KeyStore with the given configuration. Keys
// are not loaded until LoadKeys is called.
func NewKeyStore(cfg KeyStoreConfig) *KeyStore {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &KeyStore{
		config: cfg,
		logger: logger.With("component", "keystore"),
	}
}

// LoadKeys loads the configured key files from disk. Key files with group
// or other access are rejected with ErrInsecureFileMode.
func (k *KeyStore) LoadKeys() error {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	if k.config.TokenSKeyPath == "" {
		return errors.New("no token signing key path configured")
	}
	key, err := loadKeyFromFile(k.config.TokenSKeyPath)
	if err != nil {
		return err
	}
	k.signingKey = key.SKey
	k.verifyKey = key.VKey
	k.logger.Info(
		"loaded token signing key",
		"path", k.config.TokenSKeyPath,
		"type", key.Type,
	)
	return nil
}

// SetSigningKey installs a signing key directly, bypassing file loading.
func (k *KeyStore) SetSigningKey(sk ed25519.PrivateKey) {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	k.signingKey = sk
	if vk, ok := sk.Public().(ed25519.PublicKey); ok {
		k.verifyKey = vk
	}
}

// SigningKey returns the loaded token signing key.
func (k *KeyStore) SigningKey() (ed25519.PrivateKey, error) {
	k.mutex.RLock()
	defer k.mutex.RUnlock()
	if k.signingKey == nil {
		return nil, ErrKeysNotLoaded
	}
	return k.signingKey, nil
}

// VerificationKey returns the public half of the token signing key.
func (k *KeyStore) VerificationKey() (ed25519.PublicKey, error) {
	k.mutex.RLock()
	defer k.mutex.RUnlock()
	if k.verifyKey == nil {
		return nil, ErrKeysNotLoaded
	}
	return k.verifyKey, nil
}

// SignToken signs a JWT with the loaded signing key using EdDSA.
func (k *KeyStore) SignToken(claims jwt.Claims) (string, error) {
	sk, err := k.SigningKey()
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(sk)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Keyfunc returns the verification key for JWT parsing. It rejects tokens
// signed with any method other than EdDSA to prevent algorithm confusion.
func (k *KeyStore) Keyfunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
		return nil, fmt.Errorf(
			"unexpected token signing method: %v",
			token.Header["alg"],
		)
	}
	return k.VerificationKey()
}

// GenerateKeyFile creates a new random Ed25519 signing key and writes it
// to the given path with owner-only permissions. It refuses to overwrite
// an existing file.
func GenerateKeyFile(path, description string) error {
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate signing key: %w", err)
	}
	return saveKeyToFile(path, description, sk)
}
