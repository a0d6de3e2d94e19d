package schemadiff

import (
	"context"
	"testing"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/kvstore"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/triple"
	"github.com/itoxiq/triplit/internal/triplestore"
)

func newTestStore(t *testing.T) *triplestore.Store {
	t.Helper()
	kv, err := kvstore.New()
	if err != nil {
		t.Fatalf("kvstore.New: %v", err)
	}
	return triplestore.New(kv)
}

func putEntity(t *testing.T, store *triplestore.Store, collection, id string, attrs map[string]any) triple.EntityID {
	t.Helper()
	e := triple.EntityID{Collection: collection, ID: id}
	ts := clock.Timestamp{Tick: 1, ClientID: "c"}
	triples := []triple.Triple{{E: e, A: triple.CollectionMarkerPath, V: collection, T: ts}}
	for name, v := range attrs {
		triples = append(triples, triple.Triple{E: e, A: triple.Path{collection, name}, V: v, T: ts})
	}
	if err := store.PutAll(context.Background(), triples); err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	return e
}

func TestB1IssueFalseWhenNoLiveData(t *testing.T) {
	store := newTestStore(t)
	putEntity(t, store, "widgets", "w1", map[string]any{"color": "red"})

	meta := schema.String()
	d := attrDiff(EditDelete, "size", &meta, nil)
	edits := GetBackwardsIncompatibleEdits([]Diff{d})

	issues, err := GetSchemaDiffIssues(context.Background(), store, edits)
	if err != nil {
		t.Fatalf("GetSchemaDiffIssues: %v", err)
	}
	if len(issues) != 1 || issues[0].ViolatesExistingData {
		t.Fatalf("expected deleting an unused attribute to not violate data, got %+v", issues)
	}
}

func TestB1IssueTrueWhenAttributeHasLiveValues(t *testing.T) {
	store := newTestStore(t)
	putEntity(t, store, "widgets", "w1", map[string]any{"color": "red"})

	meta := schema.String()
	d := attrDiff(EditDelete, "color", &meta, nil)
	edits := GetBackwardsIncompatibleEdits([]Diff{d})

	issues, err := GetSchemaDiffIssues(context.Background(), store, edits)
	if err != nil {
		t.Fatalf("GetSchemaDiffIssues: %v", err)
	}
	if len(issues) != 1 || !issues[0].ViolatesExistingData {
		t.Fatalf("expected deleting a live attribute to violate data, got %+v", issues)
	}
}

func TestB2IssueFalseWhenCollectionEmpty(t *testing.T) {
	store := newTestStore(t)

	meta := schema.String()
	d := attrDiff(EditInsert, "color", &meta, nil)
	edits := GetBackwardsIncompatibleEdits([]Diff{d})

	issues, err := GetSchemaDiffIssues(context.Background(), store, edits)
	if err != nil {
		t.Fatalf("GetSchemaDiffIssues: %v", err)
	}
	if len(issues) != 1 || issues[0].ViolatesExistingData {
		t.Fatalf("expected inserting a required attribute into an empty collection to be safe, got %+v", issues)
	}
}

func TestB2IssueTrueWhenCollectionNonEmpty(t *testing.T) {
	store := newTestStore(t)
	putEntity(t, store, "widgets", "w1", map[string]any{"color": "red"})

	meta := schema.String()
	d := attrDiff(EditInsert, "size", &meta, nil)
	edits := GetBackwardsIncompatibleEdits([]Diff{d})

	issues, err := GetSchemaDiffIssues(context.Background(), store, edits)
	if err != nil {
		t.Fatalf("GetSchemaDiffIssues: %v", err)
	}
	if len(issues) != 1 || !issues[0].ViolatesExistingData {
		t.Fatalf("expected inserting a required attribute into a non-empty collection to violate data, got %+v", issues)
	}
}

func TestB6IssueDistinguishesNarrowingAgainstActualValues(t *testing.T) {
	store := newTestStore(t)
	putEntity(t, store, "widgets", "w1", map[string]any{"status": "archived"})

	d := attrDiff(EditUpdate, "status", nil, &Changes{
		Enum: &EnumChange{From: []any{"active", "archived"}, To: []any{"active"}},
	})
	edits := GetBackwardsIncompatibleEdits([]Diff{d})

	issues, err := GetSchemaDiffIssues(context.Background(), store, edits)
	if err != nil {
		t.Fatalf("GetSchemaDiffIssues: %v", err)
	}
	if len(issues) != 1 || !issues[0].ViolatesExistingData {
		t.Fatalf("expected the stored 'archived' value to violate the narrowed enum, got %+v", issues)
	}
}

func TestBackwardsCompatibleDiffNeverProducesIssues(t *testing.T) {
	store := newTestStore(t)
	putEntity(t, store, "widgets", "w1", map[string]any{"color": "red"})

	d := attrDiff(EditUpdate, "color", nil, &Changes{Optional: &BoolChange{From: false, To: true}})
	edits := GetBackwardsIncompatibleEdits([]Diff{d})
	if len(edits) != 0 {
		t.Fatalf("required->optional should never be classified as unsafe, got %+v", edits)
	}
}
