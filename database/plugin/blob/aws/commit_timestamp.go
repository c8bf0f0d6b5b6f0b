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

package aws

import (
	"math/big"

	"github.com/blinklabs-io/veilpost/database/sops"
	"github.com/blinklabs-io/veilpost/database/types"
)

const commitTimestampBlobKey = "metadata_commit_timestamp"

// GetCommitTimestamp reads the commit timestamp from S3. The value is
// encrypted at rest with SOPS since the bucket may be shared with less
// trusted consumers of the journal archive.
func (b *BlobStoreS3) GetCommitTimestamp() (int64, error) {
	txn := b.NewTransaction(false)
	if txn == nil {
		return 0, types.ErrNilTxn
	}
	defer txn.Rollback() //nolint:errcheck // no-op for this backend

	ciphertext, err := b.Get(txn, []byte(commitTimestampBlobKey))
	if err != nil {
		return 0, err
	}
	plaintext, err := sops.Decrypt(ciphertext)
	if err != nil {
		b.logger.Errorf("failed to decrypt commit timestamp: %v", err)
		return 0, err
	}
	return new(big.Int).SetBytes(plaintext).Int64(), nil
}

func (b *BlobStoreS3) SetCommitTimestamp(
	ts int64,
	txn types.Txn,
) error {
	if txn == nil {
		return types.ErrNilTxn
	}
	raw := new(big.Int).SetInt64(ts).Bytes()
	ciphertext, err := sops.Encrypt(raw)
	if err != nil {
		b.logger.Errorf("failed to encrypt commit timestamp: %v", err)
		return err
	}
	if err := b.Set(txn, []byte(commitTimestampBlobKey), ciphertext); err != nil {
		return err
	}
	b.logger.Infof("commit timestamp %d written to S3", ts)
	return nil
}
