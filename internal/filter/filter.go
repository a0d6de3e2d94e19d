// Package filter implements the where-predicate evaluator (component
// C7): nested and/or/not boolean trees whose leaves compare a path's
// current value against a literal or a `$variable` reference.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"
)

// Op identifies a leaf comparison operator.
type Op string

const (
	OpEq     Op = "="
	OpNeq    Op = "!="
	OpLt     Op = "<"
	OpLte    Op = "<="
	OpGt     Op = ">"
	OpGte    Op = ">="
	OpIn     Op = "in"
	OpNin    Op = "nin"
	OpHas    Op = "has"
	OpNotHas Op = "!has"
	OpLike   Op = "like"
)

// Var is a `$variable` reference inside a clause's value, resolved
// against the query's variables scope at evaluation time.
type Var string

// Clause is one leaf of the predicate tree: `[path, op, value]`.
type Clause struct {
	Path  triple.Path
	Op    Op
	Value any
}

// Predicate is a node in the nested boolean tree: exactly one of
// Clause, And, Or, Not, or Literal is set.
type Predicate struct {
	Clause  *Clause
	And     []Predicate
	Or      []Predicate
	Not     *Predicate
	Literal *bool
}

// Where builds a leaf clause predicate.
func Where(path triple.Path, op Op, value any) Predicate {
	return Predicate{Clause: &Clause{Path: path, Op: op, Value: value}}
}

// And builds a conjunction of predicates.
func And(preds ...Predicate) Predicate {
	return Predicate{And: preds}
}

// Or builds a disjunction of predicates.
func Or(preds ...Predicate) Predicate {
	return Predicate{Or: preds}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return Predicate{Not: &p}
}

// Literal builds a constant true/false predicate, e.g. a write rule
// that always rejects: `filter: [false]`.
func Literal(b bool) Predicate {
	return Predicate{Literal: &b}
}

// Query shapes a fetch beyond plain predicate filtering: ordering,
// pagination, and de-duplication of results.
type Query struct {
	Collection string
	Where      Predicate
	OrderBy    []OrderTerm
	Limit      int
	Offset     int
	Distinct   bool
}

// OrderTerm is one `order by` clause.
type OrderTerm struct {
	Path       triple.Path
	Descending bool
}

// Evaluate runs predicate p against obj's current values, resolving any
// `$variable` references against vars. A missing variable aborts
// evaluation with terrors.SessionVariableNotFound.
func Evaluate(p Predicate, obj codec.Object, vars map[string]any) (bool, error) {
	switch {
	case p.Literal != nil:
		return *p.Literal, nil
	case p.Not != nil:
		inner, err := Evaluate(*p.Not, obj, vars)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case len(p.And) > 0:
		for _, sub := range p.And {
			ok, err := Evaluate(sub, obj, vars)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case len(p.Or) > 0:
		for _, sub := range p.Or {
			ok, err := Evaluate(sub, obj, vars)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case p.Clause != nil:
		return evaluateClause(*p.Clause, obj, vars)
	default:
		return true, nil // an empty predicate matches everything.
	}
}

func evaluateClause(c Clause, obj codec.Object, vars map[string]any) (bool, error) {
	resolved, err := resolveValue(c.Value, vars)
	if err != nil {
		return false, err
	}

	if c.Op == OpHas || c.Op == OpNotHas {
		has := codec.HasMember(obj, c.Path, resolved)
		if c.Op == OpHas {
			return has, nil
		}
		return !has, nil
	}

	current, found := codec.Lookup(obj, c.Path)
	if !found {
		current = nil
	}

	switch c.Op {
	case OpEq:
		return compare(current, resolved) == 0, nil
	case OpNeq:
		return compare(current, resolved) != 0, nil
	case OpLt:
		return found && compare(current, resolved) < 0, nil
	case OpLte:
		return found && compare(current, resolved) <= 0, nil
	case OpGt:
		return found && compare(current, resolved) > 0, nil
	case OpGte:
		return found && compare(current, resolved) >= 0, nil
	case OpIn:
		values, ok := resolved.([]any)
		if !ok || !found {
			return false, nil
		}
		for _, v := range values {
			if compare(current, v) == 0 {
				return true, nil
			}
		}
		return false, nil
	case OpNin:
		values, ok := resolved.([]any)
		if !ok {
			return true, nil
		}
		if !found {
			return true, nil
		}
		for _, v := range values {
			if compare(current, v) == 0 {
				return false, nil
			}
		}
		return true, nil
	case OpLike:
		if !found {
			return false, nil
		}
		s, ok := current.(string)
		pattern, patternOK := resolved.(string)
		if !ok || !patternOK {
			return false, nil
		}
		return likeMatch(s, pattern), nil
	default:
		return false, nil
	}
}

// resolveValue substitutes a Var reference for its bound value.
func resolveValue(v any, vars map[string]any) (any, error) {
	name, ok := v.(Var)
	if !ok {
		return v, nil
	}
	value, ok := vars[string(name)]
	if !ok {
		return nil, terrors.New(terrors.SessionVariableNotFound,
			fmt.Sprintf("session variable %q is not bound", name))
	}
	return value, nil
}

func likeMatch(s, pattern string) bool {
	quoted := strings.ReplaceAll(regexp.QuoteMeta(pattern), "%", ".*")
	matched, err := regexp.MatchString("(?i)^"+quoted+"$", s)
	if err != nil {
		return false
	}
	return matched
}

// compare orders two values the way triplit's filter and sort share:
// numerically if both sides parse as numbers, lexically otherwise. nil
// sorts before every non-nil value and equals only itself.
func compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if numA, okA := toFloat64(a); okA {
		if numB, okB := toFloat64(b); okB {
			switch {
			case numA < numB:
				return -1
			case numA > numB:
				return 1
			default:
				return 0
			}
		}
	}
	strA, strB := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(strA, strB)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
