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

package types

import (
	"encoding/binary"
)

const (
	JournalBlobKeyPrefix = "j"
	JournalHeadKey       = "jh"
)

func JournalKeyUint64ToBytes(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

// JournalBlobKey builds the blob key for a journal entry. Sequence numbers
// are big-endian encoded so lexical key order matches emission order.
func JournalBlobKey(seq uint64) []byte {
	key := []byte(JournalBlobKeyPrefix)
	key = append(key, JournalKeyUint64ToBytes(seq)...)
	return key
}

// JournalSeqFromKey recovers the sequence number from a journal entry key.
// Returns false if the key is not a journal entry key.
func JournalSeqFromKey(key []byte) (uint64, bool) {
	prefix := []byte(JournalBlobKeyPrefix)
	if len(key) != len(prefix)+8 {
		return 0, false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(key[len(prefix):]), true
}
