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
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isWindows() bool {
	return runtime.GOOS == "windows"
}

const testSeedHex = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func writeKeyFile(
	t *testing.T,
	content string,
	perm os.FileMode,
) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token.skey")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadKeysSeed(t *testing.T) {
	path := writeKeyFile(
		t,
		`{
    "type": "TokenSigningKey_ed25519",
    "description": "Token Signing Key",
    "keyHex": "`+testSeedHex+`"
}`,
		0o600,
	)
	ks := NewKeyStore(KeyStoreConfig{TokenSKeyPath: path})
	require.NoError(t, ks.LoadKeys())

	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	expected := ed25519.NewKeyFromSeed(seed)
	sk, err := ks.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, expected, sk)
	vk, err := ks.VerificationKey()
	require.NoError(t, err)
	assert.True(t, expected.Public().(ed25519.PublicKey).Equal(vk))
}

func TestLoadKeysSeedPlusPublic(t *testing.T) {
	// The public key half is garbage; the derived key must come from the
	// seed, not the file contents
	path := writeKeyFile(
		t,
		`{
    "type": "TokenSigningKey_ed25519",
    "description": "Token Signing Key",
    "keyHex": "`+testSeedHex+`ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
}`,
		0o600,
	)
	ks := NewKeyStore(KeyStoreConfig{TokenSKeyPath: path})
	require.NoError(t, ks.LoadKeys())

	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	vk, err := ks.VerificationKey()
	require.NoError(t, err)
	assert.True(
		t,
		ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey).Equal(vk),
	)
}

func TestLoadKeysInsecurePermissions(t *testing.T) {
	if isWindows() {
		t.Skip("Unix permission bits are not meaningful on Windows")
	}
	path := writeKeyFile(
		t,
		`{
    "type": "TokenSigningKey_ed25519",
    "description": "Token Signing Key",
    "keyHex": "`+testSeedHex+`"
}`,
		0o644,
	)
	ks := NewKeyStore(KeyStoreConfig{TokenSKeyPath: path})
	err := ks.LoadKeys()
	require.ErrorIs(t, err, ErrInsecureFileMode)
}

func TestLoadKeysUnknownType(t *testing.T) {
	path := writeKeyFile(
		t,
		`{
    "type": "PaymentSigningKeyShelley_ed25519",
    "description": "",
    "keyHex": "`+testSeedHex+`"
}`,
		0o600,
	)
	ks := NewKeyStore(KeyStoreConfig{TokenSKeyPath: path})
	err := ks.LoadKeys()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key type")
}

func TestLoadKeysBadLength(t *testing.T) {
	path := writeKeyFile(
		t,
		`{
    "type": "TokenSigningKey_ed25519",
    "description": "",
    "keyHex": "abcd"
}`,
		0o600,
	)
	ks := NewKeyStore(KeyStoreConfig{TokenSKeyPath: path})
	err := ks.LoadKeys()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signing key bytes")
}

func TestGenerateKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.skey")
	require.NoError(t, GenerateKeyFile(path, "Token Signing Key"))

	if !isWindows() {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}

	ks := NewKeyStore(KeyStoreConfig{TokenSKeyPath: path})
	require.NoError(t, ks.LoadKeys())

	// Refuses to overwrite an existing key file
	err := GenerateKeyFile(path, "Token Signing Key")
	require.Error(t, err)
}

func TestSignTokenNotLoaded(t *testing.T) {
	ks := NewKeyStore(KeyStoreConfig{})
	_, err := ks.SignToken(jwt.RegisteredClaims{Subject: "org-1"})
	require.ErrorIs(t, err, ErrKeysNotLoaded)
}

func TestSignAndParseToken(t *testing.T) {
	_, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	ks := NewKeyStore(KeyStoreConfig{})
	ks.SetSigningKey(sk)

	signed, err := ks.SignToken(
		jwt.RegisteredClaims{
			Subject:   "org-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	)
	require.NoError(t, err)

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(signed, &claims, ks.Keyfunc)
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "org-1", claims.Subject)
}

func TestKeyfuncRejectsWrongAlg(t *testing.T) {
	_, sk, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	ks := NewKeyStore(KeyStoreConfig{})
	ks.SetSigningKey(sk)

	// A token signed with an HMAC key must not be accepted even if the
	// signature happens to check out under some key
	hmacToken := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.RegisteredClaims{Subject: "org-1"},
	)
	signed, err := hmacToken.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = jwt.Parse(signed, ks.Keyfunc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected token signing method")
}
