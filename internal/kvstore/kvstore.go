// Package kvstore implements the ordered key/value adapter the rest of
// triplit is built on. Keys are kept in a single B-tree so range scans
// come back in lexical order, which is what the triple store needs to
// walk an entity's attributes or an attribute's values in order.
//
// Durability is optional: a Store opened without a WAL path behaves as a
// pure in-memory store, matching the teacher's InMemStore; a Store opened
// with one appends every committed write to the log before acknowledging
// the transaction, and can replay it on startup.
package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/btree"

	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/wal"
)

const btreeDegree = 32

// entry is the item stored in the B-tree: an ordered key, its current
// value, and a version counter bumped on every write so concurrent
// transactions can detect conflicting writes to the same key.
type entry struct {
	Key     string
	Value   []byte
	Version uint64
}

func entryLess(a, b entry) bool {
	return a.Key < b.Key
}

// Store is the ordered, transactional KV adapter (component C1).
type Store struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[entry]
	wal  *wal.WAL
}

// Option configures a Store at construction time.
type Option func(*Store) error

// WithWAL enables write-ahead logging at path and replays any existing
// log into the store before returning.
func WithWAL(path string) Option {
	return func(s *Store) error {
		entries, err := wal.Replay(path)
		if err != nil {
			return fmt.Errorf("failed to replay WAL: %w", err)
		}
		replayed := 0
		for e := range entries {
			switch e.Op {
			case wal.OpPut:
				s.tree.ReplaceOrInsert(entry{Key: e.Key, Value: e.Value, Version: 1})
			case wal.OpDelete:
				s.tree.Delete(entry{Key: e.Key})
			}
			replayed++
		}
		if replayed > 0 {
			slog.Info("kvstore: replayed WAL entries", "count", replayed, "path", path)
		}

		w, err := wal.New(path)
		if err != nil {
			return fmt.Errorf("failed to open WAL: %w", err)
		}
		s.wal = w
		return nil
	}
}

// New creates an empty ordered KV store, applying any options in order.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		tree: btree.NewG[entry](btreeDegree, entryLess),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close releases the underlying WAL file, if one is open.
func (s *Store) Close() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.Close()
}

// Get returns the value currently stored at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, found := s.tree.Get(entry{Key: key})
	if !found {
		return nil, false
	}
	return item.Value, true
}

// Range calls fn for every key in [start, end) in ascending order. An
// empty end means "no upper bound". fn returning false stops the scan.
func (s *Store) Range(_ context.Context, start, end string, fn func(key string, value []byte) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iter := func(item entry) bool {
		if end != "" && item.Key >= end {
			return false
		}
		return fn(item.Key, item.Value)
	}
	if start == "" {
		s.tree.Ascend(iter)
	} else {
		s.tree.AscendGreaterOrEqual(entry{Key: start}, iter)
	}
}

// WriteOp is a single mutation staged inside a Tx's write set, named
// after the teacher's WriteOperation journal entries.
type WriteOp struct {
	Key      string
	Value    []byte
	IsDelete bool
}

// Tx is a staged batch of writes, committed atomically against a
// consistent read snapshot.
type Tx struct {
	store    *Store
	reads    map[string]uint64
	writeSet []WriteOp
}

// Begin starts a transaction. Reads observed through the transaction are
// recorded so Commit can detect whether any of them were concurrently
// overwritten.
func (s *Store) Begin(_ context.Context) *Tx {
	return &Tx{
		store: s,
		reads: make(map[string]uint64),
	}
}

// Get reads key through the transaction, recording its current version
// for later conflict detection.
func (tx *Tx) Get(key string) ([]byte, bool) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	item, found := tx.store.tree.Get(entry{Key: key})
	if !found {
		tx.reads[key] = 0
		return nil, false
	}
	tx.reads[key] = item.Version
	return item.Value, true
}

// Put stages a write; it is not visible to other transactions until
// Commit succeeds.
func (tx *Tx) Put(key string, value []byte) {
	tx.writeSet = append(tx.writeSet, WriteOp{Key: key, Value: value})
}

// Delete stages a key removal.
func (tx *Tx) Delete(key string) {
	tx.writeSet = append(tx.writeSet, WriteOp{Key: key, IsDelete: true})
}

// Commit applies the transaction's write set atomically. It fails with a
// TransactionConflict error if any key the transaction read was modified
// by another transaction after the read.
func (tx *Tx) Commit(_ context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for key, readVersion := range tx.reads {
		item, found := tx.store.tree.Get(entry{Key: key})
		currentVersion := uint64(0)
		if found {
			currentVersion = item.Version
		}
		if currentVersion != readVersion {
			return terrors.New(terrors.TransactionConflict,
				fmt.Sprintf("key %q was modified concurrently", key))
		}
	}

	if tx.store.wal != nil && len(tx.writeSet) > 0 {
		entries := make([]wal.Entry, 0, len(tx.writeSet))
		for _, op := range tx.writeSet {
			if op.IsDelete {
				entries = append(entries, wal.Entry{Op: wal.OpDelete, Key: op.Key})
			} else {
				entries = append(entries, wal.Entry{Op: wal.OpPut, Key: op.Key, Value: op.Value})
			}
		}
		if err := tx.store.wal.WriteBatch(entries); err != nil {
			return fmt.Errorf("kvstore: failed to persist transaction to WAL: %w", err)
		}
	}

	for _, op := range tx.writeSet {
		if op.IsDelete {
			tx.store.tree.Delete(entry{Key: op.Key})
			continue
		}
		next := entry{Key: op.Key, Value: op.Value, Version: 1}
		if existing, found := tx.store.tree.Get(entry{Key: op.Key}); found {
			next.Version = existing.Version + 1
		}
		tx.store.tree.ReplaceOrInsert(next)
	}

	slog.Debug("kvstore: transaction committed", "writes", len(tx.writeSet))
	return nil
}

// Rollback discards the transaction's staged writes without touching the
// store. It exists for symmetry with Commit; since writes are only ever
// applied inside Commit, Rollback never needs to undo anything.
func (tx *Tx) Rollback() {
	tx.writeSet = nil
	tx.reads = nil
}

// Snapshot returns a point-in-time copy of every key/value pair, used by
// the persistence layer to write a full snapshot to disk.
func (s *Store) Snapshot(_ context.Context) map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, s.tree.Len())
	s.tree.Ascend(func(item entry) bool {
		value := make([]byte, len(item.Value))
		copy(value, item.Value)
		out[item.Key] = value
		return true
	})
	return out
}

// Load replaces the store's contents with data, used to restore from a
// snapshot. It does not write to or replay the WAL.
func (s *Store) Load(data map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = btree.NewG[entry](btreeDegree, entryLess)
	for k, v := range data {
		s.tree.ReplaceOrInsert(entry{Key: k, Value: v, Version: 1})
	}
}

// Rotate truncates the WAL, intended to be called right after a snapshot
// durably captures the store's full contents.
func (s *Store) Rotate() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.Rotate()
}

// Len reports the number of keys currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}
