package triple

import (
	"testing"

	"github.com/itoxiq/triplit/internal/terrors"
)

func TestParseEntityIDRoundTrip(t *testing.T) {
	e, err := ParseEntityID("users#u1")
	if err != nil {
		t.Fatalf("ParseEntityID: %v", err)
	}
	if e.Collection != "users" || e.ID != "u1" {
		t.Fatalf("got %+v", e)
	}
	if e.String() != "users#u1" {
		t.Fatalf("String() = %q", e.String())
	}
}

func TestParseEntityIDRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "noseparator", "#missingcollection", "users#", "users#a#b"} {
		if _, err := ParseEntityID(s); err == nil {
			t.Fatalf("expected error for %q", s)
		} else if !terrors.Of(err, terrors.InvalidEntityId) {
			t.Fatalf("expected InvalidEntityId for %q, got %v", s, err)
		}
	}
}

func TestPathHasPrefix(t *testing.T) {
	p := Path{"users", "address", "city"}
	if !p.HasPrefix(Path{"users", "address"}) {
		t.Fatalf("expected prefix match")
	}
	if p.HasPrefix(Path{"users", "name"}) {
		t.Fatalf("expected no prefix match")
	}
	if p.HasPrefix(Path{"users", "address", "city", "extra"}) {
		t.Fatalf("longer prefix cannot match")
	}
}

func TestPathAppendDoesNotMutateReceiver(t *testing.T) {
	p := Path{"users"}
	q := p.Append("name")
	if len(p) != 1 {
		t.Fatalf("Append mutated receiver: %v", p)
	}
	if !q.Equal(Path{"users", "name"}) {
		t.Fatalf("Append result = %v", q)
	}
}

func TestIsScalar(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{"s", true},
		{1.5, true},
		{true, true},
		{nil, true},
		{[]int{1}, false},
		{map[string]any{}, false},
	}
	for _, c := range cases {
		if got := IsScalar(c.v); got != c.want {
			t.Fatalf("IsScalar(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}
