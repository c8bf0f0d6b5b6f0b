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

package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blinklabs-io/veilpost/database"
	"github.com/blinklabs-io/veilpost/database/types"
)

// Entry is a single notification journal record. Entries are append-only
// and sequence numbers start at 1 with no gaps.
type Entry struct {
	Seq       uint64          `json:"seq"`
	Type      string          `json:"type"`
	Timestamp uint64          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Journal provides the append-only notification stream over the blob store.
// Appends happen inside the caller's transaction so a journal record and the
// ledger mutation it describes commit or roll back together.
type Journal struct {
	db     *database.Database
	logger *slog.Logger
}

func New(db *database.Database, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Journal{
		db:     db,
		logger: logger,
	}
}

// Append writes the next journal entry within the given transaction and
// returns its sequence number. Callers are expected to serialize appends;
// the ledger does this by holding its operation mutex.
func (j *Journal) Append(
	txn *database.Txn,
	entryType string,
	timestamp uint64,
	data any,
) (uint64, error) {
	if txn == nil {
		return 0, types.ErrNilTxn
	}
	head, err := j.head(txn)
	if err != nil {
		return 0, err
	}
	seq := head + 1
	entryData, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal journal entry data: %w", err)
	}
	entry := Entry{
		Seq:       seq,
		Type:      entryType,
		Timestamp: timestamp,
		Data:      entryData,
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if err := j.db.Blob().Set(
		txn.Blob(),
		types.JournalBlobKey(seq),
		encoded,
	); err != nil {
		return 0, err
	}
	headBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(headBytes, seq)
	if err := j.db.Blob().Set(
		txn.Blob(),
		[]byte(types.JournalHeadKey),
		headBytes,
	); err != nil {
		return 0, err
	}
	return seq, nil
}

// Head returns the sequence number of the most recent journal entry, or
// zero when the journal is empty.
func (j *Journal) Head() (uint64, error) {
	txn := j.db.BlobTransaction(false)
	defer txn.Release()
	return j.head(txn)
}

func (j *Journal) head(txn *database.Txn) (uint64, error) {
	val, err := j.db.Blob().Get(txn.Blob(), []byte(types.JournalHeadKey))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed journal head value: %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

// Get returns a single journal entry by sequence number
func (j *Journal) Get(seq uint64) (*Entry, error) {
	txn := j.db.BlobTransaction(false)
	defer txn.Release()
	return j.get(txn, seq)
}

func (j *Journal) get(txn *database.Txn, seq uint64) (*Entry, error) {
	val, err := j.db.Blob().Get(txn.Blob(), types.JournalBlobKey(seq))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
	}
	return &entry, nil
}

// ErrStopReplay can be returned by a Replay callback to end iteration early
// without Replay reporting an error.
var ErrStopReplay = errors.New("stop journal replay")

// Replay iterates journal entries in sequence order starting at fromSeq
// (or 1 when fromSeq is zero) and invokes fn for each
func (j *Journal) Replay(fromSeq uint64, fn func(Entry) error) error {
	if fromSeq == 0 {
		fromSeq = 1
	}
	txn := j.db.BlobTransaction(false)
	defer txn.Release()
	iter := j.db.Blob().NewIterator(
		txn.Blob(),
		types.BlobIteratorOptions{
			Prefix: []byte(types.JournalBlobKeyPrefix),
		},
	)
	defer iter.Close()
	for iter.Seek(types.JournalBlobKey(fromSeq)); iter.ValidForPrefix([]byte(types.JournalBlobKeyPrefix)); iter.Next() {
		item := iter.Item()
		// Skip non-entry keys sharing the journal prefix (the head key)
		if _, ok := types.JournalSeqFromKey(item.Key()); !ok {
			continue
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var entry Entry
		if err := json.Unmarshal(val, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}
		if err := fn(entry); err != nil {
			if errors.Is(err, ErrStopReplay) {
				return nil
			}
			return err
		}
	}
	return iter.Err()
}

// Entries returns up to limit journal entries starting at fromSeq. A limit
// of zero or less returns all remaining entries.
func (j *Journal) Entries(fromSeq uint64, limit int) ([]Entry, error) {
	var ret []Entry
	err := j.Replay(fromSeq, func(entry Entry) error {
		ret = append(ret, entry)
		if limit > 0 && len(ret) >= limit {
			return ErrStopReplay
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}
