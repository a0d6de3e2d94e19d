package triplit

import (
	"context"
	"fmt"

	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/migrate"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/schemadiff"
	"github.com/itoxiq/triplit/internal/triplestore"
)

// Migrate runs migrations against the DB's schema in direction,
// advancing (or reverting) `_schema.version` one gated step at a time.
func (db *DB) Migrate(ctx context.Context, migrations []migrate.Migration, direction migrate.Direction) error {
	return db.migrations.Apply(ctx, migrations, direction)
}

// applyOp runs a single migration op as its own one-step migration,
// gated against the DB's current schema version, for the direct
// CreateCollection/AddAttribute/... convenience methods.
func (db *DB) applyOp(ctx context.Context, op migrate.Op) error {
	version, err := db.migrations.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	m := migrate.Migration{Version: version + 1, Parent: version, Up: []migrate.Op{op}}
	return db.migrations.Apply(ctx, []migrate.Migration{m}, migrate.Up)
}

// CreateCollection declares a new collection with attrs as its schema.
func (db *DB) CreateCollection(ctx context.Context, name string, attrs schema.AttributeMap) error {
	return db.applyOp(ctx, migrate.Op{Type: migrate.OpCreateCollection, Collection: name, Schema: attrs})
}

// DropCollection removes a collection's schema entry and tombstones
// every entity currently in it.
func (db *DB) DropCollection(ctx context.Context, name string) error {
	return db.applyOp(ctx, migrate.Op{Type: migrate.OpDropCollection, Collection: name})
}

// AddAttribute declares a new top-level attribute on collection.
func (db *DB) AddAttribute(ctx context.Context, collection string, attribute string, desc schema.AttributeDescriptor) error {
	return db.applyOp(ctx, migrate.Op{Type: migrate.OpAddAttribute, Collection: collection, Attribute: attribute, Descriptor: &desc})
}

// DropAttribute removes a top-level attribute from collection's schema
// and tombstones every entity's current value at that attribute.
func (db *DB) DropAttribute(ctx context.Context, collection string, attribute string) error {
	return db.applyOp(ctx, migrate.Op{Type: migrate.OpDropAttribute, Collection: collection, Attribute: attribute})
}

// RenameAttribute renames a top-level attribute in collection's schema,
// rewriting every entity's current triple under the old name to the new
// one at a single commit timestamp.
func (db *DB) RenameAttribute(ctx context.Context, collection string, from, to string) error {
	return db.applyOp(ctx, migrate.Op{Type: migrate.OpRenameAttribute, Collection: collection, Attribute: from, NewAttribute: to})
}

// OverrideSchema replaces the `_schema` document wholesale, bypassing
// schemadiff and migrate entirely. For test and admin use: it performs
// no data migration, so a schema that disagrees with data already
// written is not reconciled.
func (db *DB) OverrideSchema(ctx context.Context, s *schema.Schema) error {
	tombstones, err := migrate.TombstoneSchemaSubtree(ctx, db.store, db.clock.Next())
	if err != nil {
		return err
	}

	// A later tick than the tombstones, so the replacement wins "latest
	// per path" everywhere it writes, leaving only a tombstone current
	// for any path the new doc omits.
	triples, err := codec.PlainToTriples(triplestore.SchemaEntity.Collection, triplestore.SchemaEntity.ID, s.ToDoc(), db.clock.Next(), nil)
	if err != nil {
		return fmt.Errorf("triplit: encoding overridden schema: %w", err)
	}
	return db.store.PutAll(ctx, append(triples, tombstones...))
}

// DiffSchema computes the backwards-incompatible edits between old and
// new, without consulting any live data.
func (db *DB) DiffSchema(old, new *schema.Schema) []schemadiff.IncompatibleEdit {
	return schemadiff.GetBackwardsIncompatibleEdits(schemadiff.DiffSchemas(old, new))
}

// CheckSchemaSafety re-evaluates each of edits against the DB's current
// data, reporting which are actually unsafe to apply against what is
// stored right now.
func (db *DB) CheckSchemaSafety(ctx context.Context, edits []schemadiff.IncompatibleEdit) ([]schemadiff.Issue, error) {
	return schemadiff.GetSchemaDiffIssues(ctx, db.store, edits)
}
