package proxy

import (
	"testing"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"
)

func sampleEntity() (*Entity, triple.EntityID) {
	ts := clock.Timestamp{Tick: 1, ClientID: "c"}
	id := triple.EntityID{Collection: "users", ID: "u1"}
	current := codec.Object{
		"name": codec.Leaf{Value: "Alice", Timestamp: ts},
		"tags": codec.Object{
			"admin": codec.Leaf{Value: true, Timestamp: ts},
		},
	}
	attrs := schema.AttributeMap{
		"name": schema.String(),
		"tags": schema.Set(schema.String()),
	}
	return New(id, attrs, current), id
}

func TestGetFallsBackToCurrentValue(t *testing.T) {
	e, _ := sampleEntity()
	if e.Get(triple.Path{"name"}) != "Alice" {
		t.Fatalf("Get(name) = %v", e.Get(triple.Path{"name"}))
	}
}

func TestSetStagesOverride(t *testing.T) {
	e, _ := sampleEntity()
	if err := e.Set(triple.Path{"name"}, "Bob"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if e.Get(triple.Path{"name"}) != "Bob" {
		t.Fatalf("Get(name) after Set = %v", e.Get(triple.Path{"name"}))
	}
}

func TestSetOnSetAttributeRejected(t *testing.T) {
	e, _ := sampleEntity()
	if err := e.Set(triple.Path{"tags"}, "not-a-set-value"); err == nil {
		t.Fatalf("expected error assigning directly to a set attribute")
	}
}

func TestSetOnUnknownAttributeRejected(t *testing.T) {
	e, _ := sampleEntity()
	if err := e.Set(triple.Path{"nope"}, "x"); err == nil {
		t.Fatalf("expected UnknownAttribute error")
	} else if !terrors.Of(err, terrors.UnknownAttribute) {
		t.Fatalf("expected UnknownAttribute, got %v", err)
	}
}

func TestSetHandleAddRemoveCommutativity(t *testing.T) {
	e, _ := sampleEntity()
	tags := e.SetAt(triple.Path{"tags"})

	tags.Add("x")
	tags.Remove("x")
	if tags.Has("x") {
		t.Fatalf("add then remove should leave x absent")
	}

	e2, _ := sampleEntity()
	tags2 := e2.SetAt(triple.Path{"tags"})
	tags2.Remove("x")
	tags2.Add("x")
	if !tags2.Has("x") {
		t.Fatalf("remove then add should leave x present")
	}
}

func TestSetHandleHasFallsBackToFetchedSet(t *testing.T) {
	e, _ := sampleEntity()
	tags := e.SetAt(triple.Path{"tags"})
	if !tags.Has("admin") {
		t.Fatalf("expected fetched set membership to be visible through the handle")
	}
}

func TestCommitProducesTriplesForStagedChanges(t *testing.T) {
	e, id := sampleEntity()
	e.Set(triple.Path{"name"}, "Bob")
	e.SetAt(triple.Path{"tags"}).Add("newmember")

	ts := clock.Timestamp{Tick: 5, ClientID: "c"}
	triples := e.Commit(ts)

	foundName, foundMember := false, false
	for _, tr := range triples {
		if tr.E != id {
			t.Fatalf("triple for wrong entity: %+v", tr)
		}
		if tr.A.Equal(triple.Path{"name"}) && tr.V == "Bob" {
			foundName = true
		}
		if tr.A.Equal(triple.Path{"tags", "newmember"}) && tr.V == true {
			foundMember = true
		}
	}
	if !foundName || !foundMember {
		t.Fatalf("missing expected triples: %+v", triples)
	}
}

func TestValidateAgainstSchemaRejectsNonNullable(t *testing.T) {
	e, _ := sampleEntity()
	e.Set(triple.Path{"name"}, nil)
	if err := e.ValidateAgainstSchema(); err == nil {
		t.Fatalf("expected validation error for non-nullable field set to nil")
	}
}

func TestToPlainReflectsStagedChanges(t *testing.T) {
	e, _ := sampleEntity()
	e.Set(triple.Path{"name"}, "Bob")
	plain := e.ToPlain()
	if plain["name"] != "Bob" {
		t.Fatalf("ToPlain()[name] = %v", plain["name"])
	}
}
