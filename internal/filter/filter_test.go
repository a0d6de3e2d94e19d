package filter

import (
	"testing"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"
)

func sampleObject() codec.Object {
	ts := clock.Timestamp{Tick: 1, ClientID: "c"}
	return codec.Object{
		"name": codec.Leaf{Value: "Alice", Timestamp: ts},
		"age":  codec.Leaf{Value: float64(30), Timestamp: ts},
		"address": codec.Object{
			"city": codec.Leaf{Value: "NYC", Timestamp: ts},
		},
		"tags": codec.Object{
			"admin": codec.Leaf{Value: true, Timestamp: ts},
			"guest": codec.Leaf{Value: false, Timestamp: ts},
		},
	}
}

func TestEqualityAndComparison(t *testing.T) {
	obj := sampleObject()
	cases := []struct {
		pred Predicate
		want bool
	}{
		{Where(triple.Path{"name"}, OpEq, "Alice"), true},
		{Where(triple.Path{"name"}, OpEq, "Bob"), false},
		{Where(triple.Path{"age"}, OpGt, float64(18)), true},
		{Where(triple.Path{"age"}, OpLt, float64(18)), false},
		{Where(triple.Path{"address", "city"}, OpEq, "NYC"), true},
	}
	for _, c := range cases {
		got, err := Evaluate(c.pred, obj, nil)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if got != c.want {
			t.Fatalf("Evaluate(%+v) = %v, want %v", c.pred, got, c.want)
		}
	}
}

func TestMissingPathComparesAsNull(t *testing.T) {
	obj := sampleObject()
	ok, err := Evaluate(Where(triple.Path{"nickname"}, OpEq, nil), obj, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ok {
		t.Fatalf("expected missing path to equal null")
	}

	ok, err = Evaluate(Where(triple.Path{"nickname"}, OpGt, "a"), obj, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Fatalf("expected missing path to fail ordering comparisons")
	}
}

func TestAndOrNot(t *testing.T) {
	obj := sampleObject()
	pred := And(
		Where(triple.Path{"name"}, OpEq, "Alice"),
		Or(
			Where(triple.Path{"age"}, OpEq, float64(99)),
			Where(triple.Path{"age"}, OpEq, float64(30)),
		),
	)
	ok, err := Evaluate(pred, obj, nil)
	if err != nil || !ok {
		t.Fatalf("Evaluate = %v, %v", ok, err)
	}

	negated := Not(Where(triple.Path{"name"}, OpEq, "Alice"))
	ok, err = Evaluate(negated, obj, nil)
	if err != nil || ok {
		t.Fatalf("Evaluate(not) = %v, %v", ok, err)
	}
}

func TestHasAndNotHas(t *testing.T) {
	obj := sampleObject()
	ok, _ := Evaluate(Where(triple.Path{"tags"}, OpHas, "admin"), obj, nil)
	if !ok {
		t.Fatalf("expected has(admin) to be true")
	}
	ok, _ = Evaluate(Where(triple.Path{"tags"}, OpHas, "guest"), obj, nil)
	if ok {
		t.Fatalf("expected has(guest) to be false (tombstoned)")
	}
	ok, _ = Evaluate(Where(triple.Path{"tags"}, OpNotHas, "guest"), obj, nil)
	if !ok {
		t.Fatalf("expected !has(guest) to be true")
	}
}

func TestVariableResolutionAndMissingVariable(t *testing.T) {
	obj := sampleObject()
	vars := map[string]any{"who": "Alice"}

	ok, err := Evaluate(Where(triple.Path{"name"}, OpEq, Var("who")), obj, vars)
	if err != nil || !ok {
		t.Fatalf("Evaluate = %v, %v", ok, err)
	}

	_, err = Evaluate(Where(triple.Path{"name"}, OpEq, Var("missing")), obj, vars)
	if err == nil {
		t.Fatalf("expected SessionVariableNotFound")
	}
	if !terrors.Of(err, terrors.SessionVariableNotFound) {
		t.Fatalf("expected SessionVariableNotFound, got %v", err)
	}
}

func TestLiteralFalsePredicate(t *testing.T) {
	obj := sampleObject()
	ok, err := Evaluate(Literal(false), obj, nil)
	if err != nil || ok {
		t.Fatalf("Evaluate(literal false) = %v, %v", ok, err)
	}
}

func TestLikeOperator(t *testing.T) {
	obj := sampleObject()
	ok, err := Evaluate(Where(triple.Path{"name"}, OpLike, "Al%"), obj, nil)
	if err != nil || !ok {
		t.Fatalf("Evaluate(like) = %v, %v", ok, err)
	}
}

func TestInAndNin(t *testing.T) {
	obj := sampleObject()
	ok, _ := Evaluate(Where(triple.Path{"name"}, OpIn, []any{"Bob", "Alice"}), obj, nil)
	if !ok {
		t.Fatalf("expected in to match")
	}
	ok, _ = Evaluate(Where(triple.Path{"name"}, OpNin, []any{"Bob", "Alice"}), obj, nil)
	if ok {
		t.Fatalf("expected nin to fail when value is in the list")
	}
}
