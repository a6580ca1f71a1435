// SPDX-License-Identifier: MIT

// Package journal keeps an append-only audit trail of timeout
// resolutions in a Badger database.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/forgeci/buildmetad/internal/timeout"
	"github.com/forgeci/buildmetad/internal/types"
)

// Entry is one recorded resolution outcome.
type Entry struct {
	BuildID    string              `json:"build_id"`
	Value      time.Duration       `json:"value"`
	Source     types.TimeoutSource `json:"source"`
	ResolvedAt time.Time           `json:"resolved_at"`
}

// Journal is a Badger-backed resolution log.
// Keys: "res:<build_id>:<seq>" (JSON values); seq comes from a Badger
// sequence so entries order correctly within a build.
type Journal struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

// Open opens (or creates) the journal at the given directory.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq:resolution"), 64)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal sequence: %w", err)
	}
	return &Journal{db: db, seq: seq, now: time.Now}, nil
}

// Close releases the sequence and closes the database.
func (j *Journal) Close() error {
	if err := j.seq.Release(); err != nil {
		_ = j.db.Close()
		return err
	}
	return j.db.Close()
}

// Append records a resolution outcome for a build.
func (j *Journal) Append(ctx context.Context, buildID string, res timeout.Resolution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := j.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	entry := Entry{
		BuildID:    buildID,
		Value:      res.Value,
		Source:     res.Source,
		ResolvedAt: j.now().UTC(),
	}
	buf, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := []byte(fmt.Sprintf("res:%s:%020d", buildID, n))
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

// History returns all recorded resolutions for a build, oldest first.
func (j *Journal) History(ctx context.Context, buildID string) ([]Entry, error) {
	prefix := []byte("res:" + buildID + ":")
	var entries []Entry

	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("decode entry %s: %w", item.Key(), err)
			}
			// Build IDs are caller-assigned and may contain colons, so
			// the key prefix alone is not exact: "res:a:" also matches
			// keys written for build "a:b". The entry carries its own
			// build ID; use it as the authoritative filter.
			if entry.BuildID != buildID {
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
