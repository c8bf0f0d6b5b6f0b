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
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/blinklabs-io/veilpost/database/models"
)

// Principal is an opaque caller or organization identifier. Principals are
// compared byte-for-byte and are never interpreted.
type Principal string

func (p Principal) String() string {
	return string(p)
}

// Valid returns whether the principal is non-empty and within the maximum
// length
func (p Principal) Valid() bool {
	return len(p) > 0 && len(p) <= models.MaxPrincipalLen
}

// DigestSize is the size in bytes of commitment digests, nullifier hashes,
// and membership roots
const DigestSize = 32

// Digest is a fixed-size opaque hash value
type Digest [DigestSize]byte

// ZeroDigest is the membership root of an organization before its first
// root rotation
var ZeroDigest = Digest{}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) Bytes() []byte {
	return d[:]
}

// IsZero returns whether the digest is all zero bytes
func (d Digest) IsZero() bool {
	return d == ZeroDigest
}

// NewDigest builds a digest from a byte slice of exactly DigestSize bytes
func NewDigest(data []byte) (Digest, error) {
	var ret Digest
	if len(data) != DigestSize {
		return ret, fmt.Errorf(
			"invalid digest length: expected %d bytes, got %d",
			DigestSize,
			len(data),
		)
	}
	copy(ret[:], data)
	return ret, nil
}

// NewDigestFromHex builds a digest from a hex string
func NewDigestFromHex(s string) (Digest, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid digest hex: %w", err)
	}
	return NewDigest(data)
}

func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	tmpDigest, err := NewDigestFromHex(s)
	if err != nil {
		return err
	}
	*d = tmpDigest
	return nil
}

// OrganizationRecord is the queryable view of an organization. A zero
// record with Exists false is returned for unknown principals.
type OrganizationRecord struct {
	Principal       Principal
	MetadataRef     string
	MembershipRoot  Digest
	SubscriptionEnd uint64
	Exists          bool
	Verified        bool
}
