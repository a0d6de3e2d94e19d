// Package migrate implements the migration executor (component C10):
// gated up/down operation sequences that mutate the `_schema` namespace
// and, for renames, the data triples that depend on it, all inside one
// atomic transaction per migration.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"
	"github.com/itoxiq/triplit/internal/triplestore"
)

// OpType tags one migration step.
type OpType string

const (
	OpCreateCollection OpType = "create_collection"
	OpDropCollection   OpType = "drop_collection"
	OpAddAttribute     OpType = "add_attribute"
	OpDropAttribute    OpType = "drop_attribute"
	OpRenameAttribute  OpType = "rename_attribute"
)

// Op is one migration step. Which fields matter depends on Type:
//   - create_collection: Collection, Schema
//   - drop_collection:   Collection
//   - add_attribute:     Collection, Attribute, Descriptor
//   - drop_attribute:    Collection, Attribute
//   - rename_attribute:  Collection, Attribute (from), NewAttribute (to)
type Op struct {
	Type         OpType
	Collection   string
	Attribute    string
	NewAttribute string
	Descriptor   *schema.AttributeDescriptor
	Schema       schema.AttributeMap
}

// Migration is a versioned, reversible step in the schema's history.
type Migration struct {
	Version int
	Parent  int
	Up      []Op
	Down    []Op
}

// Direction selects which half of a Migration to gate against.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Executor applies migrations against a triple store, keeping the
// `_schema` document's version field as the single source of truth for
// which migrations are eligible to run.
type Executor struct {
	store *triplestore.Store
	clock *clock.Clock
}

// New builds a migration executor over store, stamping every migration's
// triples with timestamps from clk.
func New(store *triplestore.Store, clk *clock.Clock) *Executor {
	return &Executor{store: store, clock: clk}
}

// CurrentVersion reads the schema document's version field.
func (ex *Executor) CurrentVersion(ctx context.Context) (int, error) {
	s, err := ex.LoadSchema(ctx)
	if err != nil {
		return 0, err
	}
	return s.Version, nil
}

// LoadSchema reads and decodes the `_schema` document. A store with no
// schema triples yet yields an empty schema at version 0, per the note
// that bootstrapping code must tolerate a partially-written `_schema`
// subtree.
func (ex *Executor) LoadSchema(ctx context.Context) (*schema.Schema, error) {
	current, err := ex.store.Current(ctx, triplestore.SchemaEntity)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return schema.New(), nil
	}
	obj := codec.TriplesToObject(current, triplestore.SchemaEntity.Collection)
	doc := codec.ObjectToPlain(obj, nil)
	s, err := schema.FromDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("migrate: decoding _schema: %w", err)
	}
	return s, nil
}

func schemaTriples(s *schema.Schema, ts clock.Timestamp) ([]triple.Triple, error) {
	doc := s.ToDoc()
	return codec.PlainToTriples(triplestore.SchemaEntity.Collection, triplestore.SchemaEntity.ID, doc, ts, nil)
}

// Apply runs every migration in migrations whose gate condition matches
// the store's current version, in order, each as its own transaction.
// Migrations whose gate doesn't match are skipped and logged, not
// treated as errors — this lets callers pass a whole migration history
// and have only the relevant step actually run.
func (ex *Executor) Apply(ctx context.Context, migrations []Migration, direction Direction) error {
	for _, m := range migrations {
		version, err := ex.CurrentVersion(ctx)
		if err != nil {
			return err
		}

		var ops []Op
		var nextVersion int
		switch direction {
		case Up:
			if m.Parent != version {
				slog.Debug("migrate: skipping up migration, gate mismatch", "version", m.Version, "parent", m.Parent, "current", version)
				continue
			}
			ops, nextVersion = m.Up, m.Version
		case Down:
			if m.Version != version {
				slog.Debug("migrate: skipping down migration, gate mismatch", "version", m.Version, "current", version)
				continue
			}
			ops, nextVersion = m.Down, m.Parent
		default:
			return terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("unknown migration direction %q", direction))
		}

		if err := ex.applyOne(ctx, ops, nextVersion); err != nil {
			slog.Error("migrate: migration failed, version not advanced", "version", m.Version, "direction", direction, "error", err)
			return err
		}
		slog.Info("migrate: applied migration", "version", nextVersion, "direction", direction)
	}
	return nil
}

func (ex *Executor) applyOne(ctx context.Context, ops []Op, nextVersion int) error {
	s, err := ex.LoadSchema(ctx)
	if err != nil {
		return err
	}
	ts := ex.clock.Next()

	var dataTriples []triple.Triple
	for _, op := range ops {
		rewrites, err := ex.applySchemaOp(ctx, s, op, ts)
		if err != nil {
			return err
		}
		dataTriples = append(dataTriples, rewrites...)
	}
	s.Version = nextVersion

	schemaTombstones, err := TombstoneSchemaSubtree(ctx, ex.store, ts)
	if err != nil {
		return err
	}

	// Written at a strictly later tick than schemaTombstones so the
	// wholesale replacement wins "latest per path" for every surviving
	// path, while paths the new doc omits are left with only a tombstone
	// current.
	batch, err := schemaTriples(s, ex.clock.Next())
	if err != nil {
		return err
	}
	batch = append(batch, dataTriples...)
	batch = append(batch, schemaTombstones...)
	return ex.store.PutAll(ctx, batch)
}

// TombstoneSchemaSubtree returns a tombstone, at ts, for every triple
// currently live under the `_schema` entity. applyOne and the root
// package's OverrideSchema both replace the whole `_schema` document
// wholesale rather than patch it, so the old subtree must be retired or
// a removed collection/attribute stays "current" forever.
func TombstoneSchemaSubtree(ctx context.Context, store *triplestore.Store, ts clock.Timestamp) ([]triple.Triple, error) {
	current, err := store.Current(ctx, triplestore.SchemaEntity)
	if err != nil {
		return nil, err
	}
	out := make([]triple.Triple, 0, len(current))
	for _, t := range current {
		if t.Expired {
			continue
		}
		out = append(out, triple.Triple{E: t.E, A: t.A, V: t.V, T: ts, Expired: true})
	}
	return out, nil
}

// applySchemaOp mutates s in place for one operation and returns any data
// triples that need to be written alongside the schema change
// (drop_collection, drop_attribute and rename_attribute produce them).
func (ex *Executor) applySchemaOp(ctx context.Context, s *schema.Schema, op Op, ts clock.Timestamp) ([]triple.Triple, error) {
	switch op.Type {
	case OpCreateCollection:
		if _, exists := s.Collections[op.Collection]; exists {
			return nil, terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("collection %q already exists", op.Collection))
		}
		attrs := op.Schema
		if attrs == nil {
			attrs = schema.AttributeMap{}
		}
		s.Collections[op.Collection] = schema.CollectionDef{Schema: attrs}
		return nil, nil

	case OpDropCollection:
		if _, exists := s.Collections[op.Collection]; !exists {
			return nil, terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("collection %q does not exist", op.Collection))
		}
		delete(s.Collections, op.Collection)
		return ex.tombstoneCollection(ctx, op.Collection, ts)

	case OpAddAttribute:
		def, exists := s.Collections[op.Collection]
		if !exists {
			return nil, terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("collection %q does not exist", op.Collection))
		}
		if op.Descriptor == nil {
			return nil, terrors.New(terrors.InvalidMigrationOperation, "add_attribute requires a descriptor")
		}
		if def.Schema == nil {
			def.Schema = schema.AttributeMap{}
		}
		def.Schema[op.Attribute] = *op.Descriptor
		s.Collections[op.Collection] = def
		return nil, nil

	case OpDropAttribute:
		def, exists := s.Collections[op.Collection]
		if !exists {
			return nil, terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("collection %q does not exist", op.Collection))
		}
		if _, ok := def.Schema[op.Attribute]; !ok {
			return nil, terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("attribute %q does not exist on %q", op.Attribute, op.Collection))
		}
		delete(def.Schema, op.Attribute)
		s.Collections[op.Collection] = def
		return ex.tombstoneAttribute(ctx, op.Collection, op.Attribute, ts)

	case OpRenameAttribute:
		def, exists := s.Collections[op.Collection]
		if !exists {
			return nil, terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("collection %q does not exist", op.Collection))
		}
		desc, ok := def.Schema[op.Attribute]
		if !ok {
			return nil, terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("attribute %q does not exist on %q", op.Attribute, op.Collection))
		}
		delete(def.Schema, op.Attribute)
		def.Schema[op.NewAttribute] = desc
		s.Collections[op.Collection] = def
		return ex.renameAttributeData(ctx, op.Collection, op.Attribute, op.NewAttribute, ts)

	default:
		return nil, terrors.New(terrors.InvalidMigrationOperation, fmt.Sprintf("unknown migration op %q", op.Type))
	}
}

// tombstoneCollection writes tombstones for every live triple of every
// entity in collection, the same "delete by writing tombstones" lifecycle
// rule used for individual entity deletion.
func (ex *Executor) tombstoneCollection(ctx context.Context, collection string, ts clock.Timestamp) ([]triple.Triple, error) {
	entities, err := ex.store.CollectionEntities(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []triple.Triple
	for _, e := range entities {
		current, err := ex.store.Current(ctx, e)
		if err != nil {
			return nil, err
		}
		for _, t := range current {
			if t.Expired {
				continue
			}
			out = append(out, triple.Triple{E: e, A: t.A, V: t.V, T: ts, Expired: true})
		}
	}
	return out, nil
}

// tombstoneAttribute writes tombstones for every live triple under the
// dropped attribute's path, across every entity in collection.
func (ex *Executor) tombstoneAttribute(ctx context.Context, collection, attribute string, ts clock.Timestamp) ([]triple.Triple, error) {
	prefix := triple.Path{collection, attribute}
	var out []triple.Triple
	err := ex.store.CollectionAttributePrefixScan(ctx, collection, prefix, func(e triple.EntityID, t triple.Triple) bool {
		out = append(out, triple.Triple{E: e, A: t.A, V: t.V, T: ts, Expired: true})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// renameAttributeData rewrites every live data triple under the old
// attribute path to the new one: a tombstone for the old path plus a
// fresh triple at the new path carrying the same value, both at ts. This
// preserves "current value" semantics across the rename without needing
// to destructively edit the append-only log.
func (ex *Executor) renameAttributeData(ctx context.Context, collection, from, to string, ts clock.Timestamp) ([]triple.Triple, error) {
	oldPrefix := triple.Path{collection, from}
	var out []triple.Triple
	err := ex.store.CollectionAttributePrefixScan(ctx, collection, oldPrefix, func(e triple.EntityID, t triple.Triple) bool {
		suffix := t.A[len(oldPrefix):]
		newPath := append(triple.Path{collection, to}, suffix...)
		out = append(out,
			triple.Triple{E: e, A: t.A, V: t.V, T: ts, Expired: true},
			triple.Triple{E: e, A: newPath, V: t.V, T: ts, Expired: false},
		)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
