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

package badger_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/blinklabs-io/veilpost/database/plugin/blob/badger"
	"github.com/blinklabs-io/veilpost/database/types"
)

func newTestStore(t *testing.T) *badger.BlobStoreBadger {
	t.Helper()
	// Empty data dir gives us an in-memory store without GC
	store, err := badger.New(
		badger.WithGc(false),
	)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return store
}

func TestSetGetDelete(t *testing.T) {
	store := newTestStore(t)

	key := []byte("test-key")
	val := []byte("test-value")

	txn := store.NewTransaction(true)
	if err := store.Set(txn, key, val); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	txn = store.NewTransaction(false)
	got, err := store.Get(txn, key)
	if err != nil {
		t.Fatalf("failed to get value: %v", err)
	}
	if !bytes.Equal(got, val) {
		t.Errorf("unexpected value: got %q, want %q", got, val)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatalf("failed to rollback: %v", err)
	}

	txn = store.NewTransaction(true)
	if err := store.Delete(txn, key); err != nil {
		t.Fatalf("failed to delete value: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("failed to commit delete: %v", err)
	}

	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	_, err = store.Get(txn, key)
	if !errors.Is(err, types.ErrBlobKeyNotFound) {
		t.Errorf("expected ErrBlobKeyNotFound, got %v", err)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := newTestStore(t)

	key := []byte("rollback-key")

	txn := store.NewTransaction(true)
	if err := store.Set(txn, key, []byte("x")); err != nil {
		t.Fatalf("failed to set value: %v", err)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatalf("failed to rollback: %v", err)
	}

	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	_, err := store.Get(txn, key)
	if !errors.Is(err, types.ErrBlobKeyNotFound) {
		t.Errorf("expected ErrBlobKeyNotFound, got %v", err)
	}
}

func TestIteratorKeyOrder(t *testing.T) {
	store := newTestStore(t)

	// Journal entries are keyed so that lexical iteration order matches
	// sequence order
	txn := store.NewTransaction(true)
	for _, seq := range []uint64{3, 1, 2, 256} {
		if err := store.Set(txn, types.JournalBlobKey(seq), []byte{byte(seq)}); err != nil {
			t.Fatalf("failed to set journal entry: %v", err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	txn = store.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	iter := store.NewIterator(txn, types.BlobIteratorOptions{
		Prefix: []byte(types.JournalBlobKeyPrefix),
	})
	defer iter.Close()

	var seqs []uint64
	for iter.Rewind(); iter.Valid(); iter.Next() {
		seq, ok := types.JournalSeqFromKey(iter.Item().Key())
		if !ok {
			t.Fatalf("unexpected key: %q", iter.Item().Key())
		}
		seqs = append(seqs, seq)
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}

	want := []uint64{1, 2, 3, 256}
	if len(seqs) != len(want) {
		t.Fatalf("unexpected number of entries: got %d, want %d", len(seqs), len(want))
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Errorf("unexpected order at %d: got %d, want %d", i, seqs[i], want[i])
		}
	}
}

func TestCommitTimestamp(t *testing.T) {
	store := newTestStore(t)

	txn := store.NewTransaction(true)
	if err := store.SetCommitTimestamp(42, txn); err != nil {
		t.Fatalf("failed to set commit timestamp: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	ts, err := store.GetCommitTimestamp()
	if err != nil {
		t.Fatalf("failed to get commit timestamp: %v", err)
	}
	if ts != 42 {
		t.Errorf("unexpected commit timestamp: got %d, want %d", ts, 42)
	}
}

func TestTxnFromDifferentStore(t *testing.T) {
	store1 := newTestStore(t)
	store2 := newTestStore(t)

	txn := store1.NewTransaction(false)
	defer txn.Rollback() //nolint:errcheck
	if _, err := store2.Get(txn, []byte("key")); err == nil {
		t.Error("expected error using transaction from different store")
	}
}
