package triplit

import (
	"context"
	"testing"

	"github.com/itoxiq/triplit/internal/filter"
	"github.com/itoxiq/triplit/internal/proxy"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(WithClientID("test-client"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return db
}

func TestInsertThenFetchByIDRoundTrips(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.Insert(ctx, "widgets", map[string]any{"color": "red", "size": float64(3)}, "w1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	doc, err := db.FetchByID(ctx, "widgets", "w1")
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if doc["color"] != "red" || doc["size"] != float64(3) {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestFetchByIDMissingEntityIsNotFound(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.FetchByID(ctx, "widgets", "missing")
	if !terrors.Of(err, terrors.EntityNotFound) {
		t.Fatalf("expected EntityNotFound, got %v", err)
	}
}

func TestInsertRejectsIdWithHash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.Insert(ctx, "widgets", map[string]any{"color": "red"}, "bad#id")
	if !terrors.Of(err, terrors.InvalidEntityId) {
		t.Fatalf("expected InvalidEntityId, got %v", err)
	}
}

func TestInsertGeneratesIdWhenOmitted(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.Insert(ctx, "widgets", map[string]any{"color": "red"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	results, err := db.Fetch(ctx, filter.Query{Collection: "widgets"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(results))
	}
	if results[0]["id"] == "" {
		t.Fatalf("expected a generated id, got empty string")
	}
}

func TestSetAddThenRemoveLeavesMemberAbsent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.CreateCollection(ctx, "widgets", schema.AttributeMap{
		"tags": schema.Set(schema.String()),
	}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := db.Insert(ctx, "widgets", map[string]any{"tags": []any{}}, "w1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := db.Update(ctx, "widgets", "w1", func(e *proxy.Entity) error {
		h := e.SetAt(triple.Path{"tags"})
		h.Add("red")
		h.Remove("red")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := db.FetchByID(ctx, "widgets", "w1")
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	tags, _ := doc["tags"].([]any)
	for _, tag := range tags {
		if tag == "red" {
			t.Fatalf("expected red to be absent after add then remove, got %+v", tags)
		}
	}
}

func TestSetRemoveThenAddLeavesMemberPresent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.CreateCollection(ctx, "widgets", schema.AttributeMap{
		"tags": schema.Set(schema.String()),
	}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := db.Insert(ctx, "widgets", map[string]any{"tags": []any{}}, "w1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := db.Update(ctx, "widgets", "w1", func(e *proxy.Entity) error {
		h := e.SetAt(triple.Path{"tags"})
		h.Remove("red")
		h.Add("red")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := db.FetchByID(ctx, "widgets", "w1")
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	tags, _ := doc["tags"].([]any)
	found := false
	for _, tag := range tags {
		if tag == "red" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected red to be present after remove then add, got %+v", tags)
	}
}

func TestWriteRuleRejectsInsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	s := schema.New()
	s.Collections["locked"] = schema.CollectionDef{
		Schema: schema.AttributeMap{"name": schema.String()},
		Rules:  schema.RuleMap{"insert": {Filter: []any{false}}},
	}
	if err := db.OverrideSchema(ctx, s); err != nil {
		t.Fatalf("OverrideSchema: %v", err)
	}

	_, err := db.Insert(ctx, "locked", map[string]any{"name": "x"})
	if !terrors.Of(err, terrors.WriteRuleViolation) {
		t.Fatalf("expected WriteRuleViolation, got %v", err)
	}

	results, fetchErr := db.Fetch(ctx, filter.Query{Collection: "locked"})
	if fetchErr != nil {
		t.Fatalf("Fetch: %v", fetchErr)
	}
	if len(results) != 0 {
		t.Fatalf("expected no triples written after a rejected insert, got %+v", results)
	}
}

func TestRenameAttributePreservesDataThroughDB(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.CreateCollection(ctx, "users", schema.AttributeMap{
		"name": schema.String(),
	}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := db.Insert(ctx, "users", map[string]any{"name": "x"}, "u1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := db.RenameAttribute(ctx, "users", "name", "fullName"); err != nil {
		t.Fatalf("RenameAttribute: %v", err)
	}

	doc, err := db.FetchByID(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if doc["fullName"] != "x" {
		t.Fatalf("expected fullName = x, got %+v", doc)
	}
	if _, ok := doc["name"]; ok {
		t.Fatalf("expected no value under the old attribute name, got %+v", doc)
	}
}

func TestSubscribeDeliversInitialAndUpdatedResults(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.Insert(ctx, "widgets", map[string]any{"color": "red"}, "w1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var delivered [][]map[string]any
	unsubscribe, err := db.Subscribe(ctx, filter.Query{Collection: "widgets"}, func(results []map[string]any) {
		delivered = append(delivered, results)
	}, func(error) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	if len(delivered) != 1 || len(delivered[0]) != 1 {
		t.Fatalf("expected one initial delivery with one result, got %+v", delivered)
	}

	if _, err := db.Insert(ctx, "widgets", map[string]any{"color": "blue"}, "w2"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if len(delivered) != 2 || len(delivered[1]) != 2 {
		t.Fatalf("expected a second delivery with two results after insert, got %+v", delivered)
	}

	unsubscribe()
	if _, err := db.Insert(ctx, "widgets", map[string]any{"color": "green"}, "w3"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("expected no further deliveries after unsubscribe, got %+v", delivered)
	}
}
