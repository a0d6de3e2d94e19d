package migrate

import (
	"context"
	"testing"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/kvstore"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/triple"
	"github.com/itoxiq/triplit/internal/triplestore"
)

func newTestExecutor(t *testing.T) (*Executor, *triplestore.Store, *clock.Clock) {
	t.Helper()
	kv, err := kvstore.New()
	if err != nil {
		t.Fatalf("kvstore.New: %v", err)
	}
	store := triplestore.New(kv)
	clk := clock.New("migrate-test")
	return New(store, clk), store, clk
}

func TestCurrentVersionStartsAtZero(t *testing.T) {
	ex, _, _ := newTestExecutor(t)
	v, err := ex.CurrentVersion(context.Background())
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if v != 0 {
		t.Fatalf("CurrentVersion = %d, want 0", v)
	}
}

func TestApplyCreateCollectionAdvancesVersion(t *testing.T) {
	ctx := context.Background()
	ex, _, _ := newTestExecutor(t)

	migrations := []Migration{{
		Version: 1,
		Parent:  0,
		Up: []Op{{
			Type:       OpCreateCollection,
			Collection: "users",
			Schema:     schema.AttributeMap{"id": schema.Id(), "name": schema.String()},
		}},
	}}
	if err := ex.Apply(ctx, migrations, Up); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	v, err := ex.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if v != 1 {
		t.Fatalf("CurrentVersion = %d, want 1", v)
	}

	s, err := ex.LoadSchema(ctx)
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	if _, ok := s.Collections["users"]; !ok {
		t.Fatalf("expected users collection to exist, got %+v", s.Collections)
	}
}

func TestApplySkipsMigrationWhenGateMismatches(t *testing.T) {
	ctx := context.Background()
	ex, _, _ := newTestExecutor(t)

	migrations := []Migration{{
		Version: 5,
		Parent:  4, // current version is 0, so this should be skipped
		Up: []Op{{
			Type:       OpCreateCollection,
			Collection: "users",
			Schema:     schema.AttributeMap{"id": schema.Id()},
		}},
	}}
	if err := ex.Apply(ctx, migrations, Up); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	v, err := ex.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if v != 0 {
		t.Fatalf("CurrentVersion = %d, want 0 (migration should have been skipped)", v)
	}
}

func TestApplyDownReversesUp(t *testing.T) {
	ctx := context.Background()
	ex, _, _ := newTestExecutor(t)

	m := Migration{
		Version: 1,
		Parent:  0,
		Up: []Op{{
			Type:       OpCreateCollection,
			Collection: "users",
			Schema:     schema.AttributeMap{"id": schema.Id()},
		}},
		Down: []Op{{
			Type:       OpDropCollection,
			Collection: "users",
		}},
	}
	if err := ex.Apply(ctx, []Migration{m}, Up); err != nil {
		t.Fatalf("Apply up: %v", err)
	}
	if err := ex.Apply(ctx, []Migration{m}, Down); err != nil {
		t.Fatalf("Apply down: %v", err)
	}

	v, err := ex.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if v != 0 {
		t.Fatalf("CurrentVersion after down = %d, want 0", v)
	}
	s, err := ex.LoadSchema(ctx)
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	if _, ok := s.Collections["users"]; ok {
		t.Fatalf("expected users collection to be gone after down migration")
	}
}

func TestRenameAttributePreservesData(t *testing.T) {
	ctx := context.Background()
	ex, store, clk := newTestExecutor(t)

	create := Migration{
		Version: 1,
		Parent:  0,
		Up: []Op{{
			Type:       OpCreateCollection,
			Collection: "users",
			Schema:     schema.AttributeMap{"id": schema.Id(), "name": schema.String()},
		}},
	}
	if err := ex.Apply(ctx, []Migration{create}, Up); err != nil {
		t.Fatalf("Apply create: %v", err)
	}

	e := triple.EntityID{Collection: "users", ID: "u1"}
	ts := clk.Next()
	if err := store.PutAll(ctx, []triple.Triple{
		{E: e, A: triple.CollectionMarkerPath, V: "users", T: ts},
		{E: e, A: triple.Path{"users", "name"}, V: "x", T: ts},
	}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	rename := Migration{
		Version: 2,
		Parent:  1,
		Up: []Op{{
			Type:         OpRenameAttribute,
			Collection:   "users",
			Attribute:    "name",
			NewAttribute: "fullName",
		}},
	}
	if err := ex.Apply(ctx, []Migration{rename}, Up); err != nil {
		t.Fatalf("Apply rename: %v", err)
	}

	current, err := store.Current(ctx, e)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	obj := codec.TriplesToObject(current, "users")
	plain := codec.ObjectToPlain(obj, nil)

	if plain["fullName"] != "x" {
		t.Fatalf("expected fullName = x, got %+v", plain)
	}
	if _, ok := plain["name"]; ok {
		t.Fatalf("expected no current value under the old attribute name, got %+v", plain)
	}
}

func TestAddAttributeThenDropAttributeTombstonesData(t *testing.T) {
	ctx := context.Background()
	ex, store, clk := newTestExecutor(t)

	create := Migration{
		Version: 1,
		Parent:  0,
		Up: []Op{{
			Type:       OpCreateCollection,
			Collection: "users",
			Schema:     schema.AttributeMap{"id": schema.Id()},
		}},
	}
	if err := ex.Apply(ctx, []Migration{create}, Up); err != nil {
		t.Fatalf("Apply create: %v", err)
	}

	addAge := schema.Optional(schema.Number())
	addMigration := Migration{
		Version: 2,
		Parent:  1,
		Up: []Op{{
			Type:       OpAddAttribute,
			Collection: "users",
			Attribute:  "age",
			Descriptor: &addAge,
		}},
	}
	if err := ex.Apply(ctx, []Migration{addMigration}, Up); err != nil {
		t.Fatalf("Apply add_attribute: %v", err)
	}

	e := triple.EntityID{Collection: "users", ID: "u1"}
	ts := clk.Next()
	store.PutAll(ctx, []triple.Triple{
		{E: e, A: triple.CollectionMarkerPath, V: "users", T: ts},
		{E: e, A: triple.Path{"users", "age"}, V: float64(30), T: ts},
	})

	dropMigration := Migration{
		Version: 3,
		Parent:  2,
		Up: []Op{{
			Type:       OpDropAttribute,
			Collection: "users",
			Attribute:  "age",
		}},
	}
	if err := ex.Apply(ctx, []Migration{dropMigration}, Up); err != nil {
		t.Fatalf("Apply drop_attribute: %v", err)
	}

	current, err := store.Current(ctx, e)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	for _, tr := range current {
		if tr.A.Equal(triple.Path{"users", "age"}) && !tr.Expired {
			t.Fatalf("expected age to be tombstoned after drop_attribute, got %+v", tr)
		}
	}
}
