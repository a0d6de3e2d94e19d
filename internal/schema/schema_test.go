package schema

import (
	"testing"

	"github.com/itoxiq/triplit/internal/triple"
)

func exampleSchema() *Schema {
	s := New()
	s.Collections["users"] = CollectionDef{
		Schema: AttributeMap{
			"id":   Id(),
			"name": String(),
			"age":  Optional(Number()),
			"tags": Set(String()),
			"address": Record(AttributeMap{
				"city": String(),
			}),
		},
	}
	return s
}

func TestAttributeLookupScalar(t *testing.T) {
	s := exampleSchema()
	desc, err := s.Attribute("users", triple.Path{"name"})
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if desc.Kind != KindString {
		t.Fatalf("got kind %v", desc.Kind)
	}
}

func TestAttributeLookupIntoRecord(t *testing.T) {
	s := exampleSchema()
	desc, err := s.Attribute("users", triple.Path{"address", "city"})
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if desc.Kind != KindString {
		t.Fatalf("got kind %v", desc.Kind)
	}
}

func TestAttributeLookupUnknownFails(t *testing.T) {
	s := exampleSchema()
	if _, err := s.Attribute("users", triple.Path{"nope"}); err == nil {
		t.Fatalf("expected error for unknown attribute")
	}
}

func TestUnwrapOptional(t *testing.T) {
	s := exampleSchema()
	desc := s.Collections["users"].Schema["age"]
	inner, optional := desc.Unwrap()
	if !optional {
		t.Fatalf("expected optional to be true")
	}
	if inner.Kind != KindNumber {
		t.Fatalf("got inner kind %v", inner.Kind)
	}
}

func TestSchemaDocRoundTrip(t *testing.T) {
	s := exampleSchema()
	s.Version = 3
	doc := s.ToDoc()

	back, err := FromDoc(doc)
	if err != nil {
		t.Fatalf("FromDoc: %v", err)
	}
	if back.Version != 3 {
		t.Fatalf("Version = %d, want 3", back.Version)
	}
	desc, err := back.Attribute("users", triple.Path{"tags"})
	if err != nil {
		t.Fatalf("Attribute after round trip: %v", err)
	}
	if desc.Kind != KindSet || desc.Item.Kind != KindString {
		t.Fatalf("got descriptor %+v", desc)
	}
}

func TestMatchesRoleWithSecret(t *testing.T) {
	hash, err := HashSecret("topsecret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	role := RoleDef{Match: map[string]any{"org": "acme", "secret": hash}}

	ok := MatchesRole(role, map[string]any{"org": "acme", "secret": "topsecret"})
	if !ok {
		t.Fatalf("expected matching secret to satisfy role")
	}

	ok = MatchesRole(role, map[string]any{"org": "acme", "secret": "wrong"})
	if ok {
		t.Fatalf("expected wrong secret to fail role match")
	}
}

func TestMatchesRoleRequiresAllKeys(t *testing.T) {
	role := RoleDef{Match: map[string]any{"org": "acme"}}
	if MatchesRole(role, map[string]any{}) {
		t.Fatalf("expected missing key to fail match")
	}
}
