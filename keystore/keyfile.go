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

package keystore

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// signingKeyType is the envelope type for the API token signing key.
const signingKeyType = "TokenSigningKey_ed25519"

// keyFileEnvelope represents the JSON structure of a key file.
type keyFileEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	KeyHex      string `json:"keyHex"`
}

// loadedKey holds the parsed contents of a key file.
type loadedKey struct {
	Type        string
	Description string
	SKey        ed25519.PrivateKey
	VKey        ed25519.PublicKey
}

// loadKeyFromFile loads a signing key from a file path.
// Returns ErrInsecureFileMode if the file has group or other access.
//
// The file is opened first and permissions are checked on the open handle
// (via fstat on Unix) to avoid a TOCTOU race between the permission check
// and the read.
func loadKeyFromFile(path string) (*loadedKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}

	// Limit read to 1 MiB to guard against accidentally pointing at a
	// large file. Valid key files are well under this size.
	const maxKeyFileSize = 1 << 20
	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	key, err := parseKeyEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return key, nil
}

// parseKeyEnvelope parses a key file envelope.
func parseKeyEnvelope(fileBytes []byte) (*loadedKey, error) {
	var env keyFileEnvelope
	if err := json.Unmarshal(fileBytes, &env); err != nil {
		return nil, fmt.Errorf("could not parse key file envelope: %w", err)
	}

	keyBytes, err := hex.DecodeString(env.KeyHex)
	if err != nil {
		return nil, fmt.Errorf("could not decode key from hex: %w", err)
	}

	lk := &loadedKey{
		Type:        env.Type,
		Description: env.Description,
	}

	switch env.Type {
	case signingKeyType:
		sk, vk, err := decodeSigningKey(keyBytes)
		if err != nil {
			return nil, err
		}
		lk.SKey, lk.VKey = sk, vk
		return lk, nil

	default:
		return nil, fmt.Errorf("unknown key type: %s", env.Type)
	}
}

// decodeSigningKey decodes an Ed25519 signing key from raw bytes.
func decodeSigningKey(
	keyBytes []byte,
) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	var seed []byte
	switch len(keyBytes) {
	case ed25519.SeedSize:
		// Just the seed
		seed = keyBytes
	case ed25519.PrivateKeySize:
		// Seed + public key
		// Derive pubkey from seed rather than trusting file contents
		seed = keyBytes[:ed25519.SeedSize]
	default:
		return nil, nil, fmt.Errorf(
			"invalid signing key bytes: expected %d or %d, got %d",
			ed25519.SeedSize,
			ed25519.PrivateKeySize,
			len(keyBytes),
		)
	}
	sk := ed25519.NewKeyFromSeed(seed)
	vk, ok := sk.Public().(ed25519.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf(
			"unexpected public key type %T",
			sk.Public(),
		)
	}
	return sk, vk, nil
}

// saveKeyToFile writes a signing key to a file with owner-only permissions.
// It refuses to overwrite an existing file.
func saveKeyToFile(path, description string, sk ed25519.PrivateKey) error {
	env := keyFileEnvelope{
		Type:        signingKeyType,
		Description: description,
		KeyHex:      hex.EncodeToString(sk.Seed()),
	}
	data, err := json.MarshalIndent(env, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal key envelope: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file %q: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	return nil
}
