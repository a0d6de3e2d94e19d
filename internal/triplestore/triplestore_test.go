package triplestore

import (
	"context"
	"testing"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/kvstore"
	"github.com/itoxiq/triplit/internal/triple"
)

func newTestStore(t *testing.T) (*Store, *clock.Clock) {
	kv, err := kvstore.New()
	if err != nil {
		t.Fatalf("kvstore.New: %v", err)
	}
	return New(kv), clock.New("test-client")
}

func TestPutAndCurrentPicksLatest(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t)
	e := triple.EntityID{Collection: "users", ID: "u1"}

	t1 := clk.Next()
	t2 := clk.Next()

	if err := s.PutAll(ctx, []triple.Triple{
		{E: e, A: triple.Path{"users", "name"}, V: "Alice", T: t1},
		{E: e, A: triple.Path{"users", "name"}, V: "Alicia", T: t2},
	}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	current, err := s.Current(ctx, e)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if len(current) != 1 || current[0].V != "Alicia" {
		t.Fatalf("Current = %+v, want single Alicia triple", current)
	}
}

func TestTombstoneClearsCurrentValues(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t)
	e := triple.EntityID{Collection: "users", ID: "u1"}

	s.PutAll(ctx, []triple.Triple{
		{E: e, A: triple.Path{"users", "name"}, V: "Alice", T: clk.Next()},
		{E: e, A: triple.CollectionMarkerPath, V: "users", T: clk.Next()},
	})

	exists, err := s.Exists(ctx, e)
	if err != nil || !exists {
		t.Fatalf("Exists before tombstone = %v, %v", exists, err)
	}

	if err := s.Tombstone(ctx, e, clk.Next()); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}

	exists, err = s.Exists(ctx, e)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatalf("expected entity to no longer exist after tombstone")
	}
}

func TestFindByAttributeMatchesCurrentValue(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t)
	e1 := triple.EntityID{Collection: "users", ID: "u1"}
	e2 := triple.EntityID{Collection: "users", ID: "u2"}
	path := triple.Path{"users", "role"}

	s.PutAll(ctx, []triple.Triple{
		{E: e1, A: path, V: "admin", T: clk.Next()},
		{E: e2, A: path, V: "member", T: clk.Next()},
	})
	// Overwrite e1's role so a naive scan-without-Current-resolution would
	// wrongly still count the stale "admin" write.
	s.Put(ctx, triple.Triple{E: e1, A: path, V: "member", T: clk.Next()})

	admins, err := s.FindByAttribute(ctx, "users", path, func(v any, expired bool) bool {
		return !expired && v == "admin"
	})
	if err != nil {
		t.Fatalf("FindByAttribute: %v", err)
	}
	if len(admins) != 0 {
		t.Fatalf("expected no current admins, got %v", admins)
	}

	members, err := s.FindByAttribute(ctx, "users", path, func(v any, expired bool) bool {
		return !expired && v == "member"
	})
	if err != nil {
		t.Fatalf("FindByAttribute: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 current members, got %v", members)
	}
}

func TestCollectionEntitiesUsesMarker(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t)
	e1 := triple.EntityID{Collection: "users", ID: "u1"}
	e2 := triple.EntityID{Collection: "posts", ID: "p1"}

	s.PutAll(ctx, []triple.Triple{
		{E: e1, A: triple.CollectionMarkerPath, V: "users", T: clk.Next()},
		{E: e2, A: triple.CollectionMarkerPath, V: "posts", T: clk.Next()},
	})

	users, err := s.CollectionEntities(ctx, "users")
	if err != nil {
		t.Fatalf("CollectionEntities: %v", err)
	}
	if len(users) != 1 || users[0] != e1 {
		t.Fatalf("CollectionEntities(users) = %v", users)
	}
}
