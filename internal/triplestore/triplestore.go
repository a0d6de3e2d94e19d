// Package triplestore implements the EAV triple store (component C3):
// triples persisted over an ordered kvstore.Store, kept in two indexes so
// both "every attribute of this entity" and "every entity with this
// attribute" are range scans rather than full scans (values are then
// filtered by the caller's match func).
package triplestore

import (
	"context"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/kvstore"
	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"
)

// SchemaEntity is the fixed entity id under which the `_schema` document
// lives, itself stored as ordinary triples.
var SchemaEntity = triple.EntityID{Collection: "_schema", ID: "_schema"}

const (
	primaryPrefix   = "t\x00"
	attributePrefix = "a\x00"
)

// Store is the EAV triple store.
type Store struct {
	kv *kvstore.Store
}

// New wraps an ordered KV adapter as a triple store.
func New(kv *kvstore.Store) *Store {
	return &Store{kv: kv}
}

// wireTriple is the on-disk encoding of a Triple; V is carried through
// jsoniter so numbers round-trip as float64 the same way the teacher's
// tryUnmarshal normalizes indexed document fields.
type wireTriple struct {
	E       string `json:"e"`
	A       []any  `json:"a"`
	V       any    `json:"v"`
	Tick    int64  `json:"tick"`
	Client  string `json:"client"`
	Expired bool   `json:"expired"`
}

func encodeTriple(t triple.Triple) ([]byte, error) {
	w := wireTriple{
		E:       t.E.String(),
		A:       []any(t.A),
		V:       t.V,
		Tick:    t.T.Tick,
		Client:  t.T.ClientID,
		Expired: t.Expired,
	}
	return jsoniter.Marshal(w)
}

func decodeTriple(data []byte) (triple.Triple, error) {
	var w wireTriple
	if err := jsoniter.Unmarshal(data, &w); err != nil {
		return triple.Triple{}, fmt.Errorf("triplestore: corrupt triple record: %w", err)
	}
	e, err := triple.ParseEntityID(w.E)
	if err != nil {
		return triple.Triple{}, err
	}
	return triple.Triple{
		E:       e,
		A:       triple.Path(w.A),
		V:       w.V,
		T:       clock.Timestamp{Tick: w.Tick, ClientID: w.Client},
		Expired: w.Expired,
	}, nil
}

func primaryKey(t triple.Triple) string {
	return primaryPrefix + t.E.String() + "\x00" + t.A.String() + "\x00" + t.T.String()
}

func primaryEntityPrefix(e triple.EntityID) string {
	return primaryPrefix + e.String() + "\x00"
}

func attributeKey(t triple.Triple) string {
	return attributePrefix + t.E.Collection + "\x00" + t.A.String() + "\x00" + t.E.String() + "\x00" + t.T.String()
}

func attributePathPrefix(collection string, path triple.Path) string {
	return attributePrefix + collection + "\x00" + path.String() + "\x00"
}

func attributeCollectionPrefix(collection string) string {
	return attributePrefix + collection + "\x00"
}

// prefixEnd returns the lexically smallest key that is strictly greater
// than every key with prefix p, so [p, prefixEnd(p)) scans exactly the
// keys sharing that prefix. A standard ordered-KV range-scan idiom.
func prefixEnd(p string) string {
	b := []byte(p)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return "" // prefix was all 0xff bytes; "" means "no upper bound".
}

// Put writes a single triple into both the primary and attribute index.
func (s *Store) Put(ctx context.Context, t triple.Triple) error {
	return s.PutAll(ctx, []triple.Triple{t})
}

// PutAll writes a batch of triples atomically: either every triple in
// triples lands in the store, or none do.
func (s *Store) PutAll(ctx context.Context, triples []triple.Triple) error {
	tx := s.kv.Begin(ctx)
	for _, t := range triples {
		data, err := encodeTriple(t)
		if err != nil {
			return err
		}
		tx.Put(primaryKey(t), data)
		tx.Put(attributeKey(t), data)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("triplestore: commit failed: %w", err)
	}
	return nil
}

// AllVersions returns every triple ever written for entity e, including
// tombstoned and superseded ones, ordered by attribute path then time.
func (s *Store) AllVersions(ctx context.Context, e triple.EntityID) ([]triple.Triple, error) {
	prefix := primaryEntityPrefix(e)
	var out []triple.Triple
	var decodeErr error
	s.kv.Range(ctx, prefix, prefixEnd(prefix), func(_ string, value []byte) bool {
		t, err := decodeTriple(value)
		if err != nil {
			decodeErr = err
			return false
		}
		out = append(out, t)
		return true
	})
	return out, decodeErr
}

// Current returns the current triples for entity e: for every distinct
// attribute path, the triple with the maximum timestamp. Per the data
// model's invariant, this is "at most one current triple per (E, A)".
func (s *Store) Current(ctx context.Context, e triple.EntityID) ([]triple.Triple, error) {
	all, err := s.AllVersions(ctx, e)
	if err != nil {
		return nil, err
	}
	return latestPerPath(all), nil
}

// latestPerPath reduces a set of triples sharing an entity down to the
// single highest-timestamp triple per attribute path.
func latestPerPath(all []triple.Triple) []triple.Triple {
	byPath := make(map[string]triple.Triple, len(all))
	for _, t := range all {
		key := t.A.String()
		current, exists := byPath[key]
		if !exists || t.T.Compare(current.T) > 0 {
			byPath[key] = t
		}
	}
	out := make([]triple.Triple, 0, len(byPath))
	for _, t := range byPath {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].A.String() < out[j].A.String() })
	return out
}

// Exists reports whether entity e has any current, non-expired triples.
func (s *Store) Exists(ctx context.Context, e triple.EntityID) (bool, error) {
	current, err := s.Current(ctx, e)
	if err != nil {
		return false, err
	}
	for _, t := range current {
		if !t.Expired {
			return true, nil
		}
	}
	return false, nil
}

// Tombstone writes an Expired=true triple for every currently live
// attribute of entity e at timestamp t, the delete path described by the
// data model's lifecycle rules.
func (s *Store) Tombstone(ctx context.Context, e triple.EntityID, t clock.Timestamp) error {
	current, err := s.Current(ctx, e)
	if err != nil {
		return err
	}
	tombstones := make([]triple.Triple, 0, len(current))
	for _, c := range current {
		if c.Expired {
			continue
		}
		tombstones = append(tombstones, triple.Triple{E: e, A: c.A, V: c.V, T: t, Expired: true})
	}
	if len(tombstones) == 0 {
		return nil
	}
	return s.PutAll(ctx, tombstones)
}

// FindByAttribute returns every entity in collection whose *current*
// value at path satisfies match. match receives the current value (or
// nil if there is none) and decides inclusion; this keeps the scan
// single-pass while letting callers implement equality, set-membership,
// or "any value present" checks.
func (s *Store) FindByAttribute(ctx context.Context, collection string, path triple.Path, match func(value any, expired bool) bool) ([]triple.EntityID, error) {
	prefix := attributePathPrefix(collection, path)
	seen := make(map[string]struct{})
	var entities []triple.EntityID
	var decodeErr error

	s.kv.Range(ctx, prefix, prefixEnd(prefix), func(_ string, value []byte) bool {
		t, err := decodeTriple(value)
		if err != nil {
			decodeErr = err
			return false
		}
		key := t.E.String()
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}

		current, err := s.Current(ctx, t.E)
		if err != nil {
			decodeErr = err
			return false
		}
		var cur any
		expired := true
		for _, c := range current {
			if c.A.Equal(path) {
				cur, expired = c.V, c.Expired
				break
			}
		}
		if match(cur, expired) {
			entities = append(entities, t.E)
		}
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return entities, nil
}

// CollectionEntities returns every entity currently belonging to
// collection, discovered through the synthetic "_collection" marker
// triple every entity carries.
func (s *Store) CollectionEntities(ctx context.Context, collection string) ([]triple.EntityID, error) {
	return s.FindByAttribute(ctx, collection, triple.CollectionMarkerPath, func(value any, expired bool) bool {
		name, ok := value.(string)
		return !expired && ok && name == collection
	})
}

// CollectionAttributePrefixScan iterates every current, non-expired
// triple across collection whose path has the given prefix, used by the
// data-safety checker to decide whether any entity holds data under a
// path a schema edit would remove or reinterpret.
func (s *Store) CollectionAttributePrefixScan(ctx context.Context, collection string, prefix triple.Path, fn func(e triple.EntityID, t triple.Triple) bool) error {
	entities, err := s.CollectionEntities(ctx, collection)
	if err != nil {
		return err
	}
	for _, e := range entities {
		current, err := s.Current(ctx, e)
		if err != nil {
			return err
		}
		for _, t := range current {
			if t.Expired {
				continue
			}
			if !t.A.HasPrefix(prefix) {
				continue
			}
			if !fn(e, t) {
				return nil
			}
		}
	}
	return nil
}

// UnknownAttributeError builds the error terrors.UnknownAttribute kind
// for a write that targets a path with no schema entry.
func UnknownAttributeError(collection string, path triple.Path) error {
	return terrors.New(terrors.UnknownAttribute,
		fmt.Sprintf("%s has no attribute at %s", collection, path.String()))
}
