package triplit

import (
	"fmt"

	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/filter"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/triple"
)

// decodeFilter turns a WriteRule's opaque Filter blob back into a
// filter.Predicate tree. The blob is schema's own JSON-shaped encoding
// of a predicate: a literal bool, a `[path, op, value]` clause, an
// `{"and"|"or": [...]}` combinator, or `{"not": ...}`; a bare list of
// any of those is an implicit "and" (the "filter: [false]" shape from
// the write-rule-rejects scenario is a one-element list of this kind).
func decodeFilter(raw any) (filter.Predicate, error) {
	items, ok := raw.([]any)
	if !ok {
		return decodeFilterTerm(raw)
	}
	preds := make([]filter.Predicate, 0, len(items))
	for _, item := range items {
		p, err := decodeFilterTerm(item)
		if err != nil {
			return filter.Predicate{}, err
		}
		preds = append(preds, p)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return filter.And(preds...), nil
}

func decodeFilterTerm(raw any) (filter.Predicate, error) {
	switch v := raw.(type) {
	case bool:
		return filter.Literal(v), nil
	case []any:
		if len(v) != 3 {
			return filter.Predicate{}, fmt.Errorf("triplit: malformed write-rule clause %v", v)
		}
		path, err := decodeFilterPath(v[0])
		if err != nil {
			return filter.Predicate{}, err
		}
		op, ok := v[1].(string)
		if !ok {
			return filter.Predicate{}, fmt.Errorf("triplit: write-rule operator must be a string, got %T", v[1])
		}
		return filter.Where(path, filter.Op(op), v[2]), nil
	case map[string]any:
		if sub, ok := v["and"]; ok {
			return decodeFilterCombinator(sub, true)
		}
		if sub, ok := v["or"]; ok {
			return decodeFilterCombinator(sub, false)
		}
		if sub, ok := v["not"]; ok {
			inner, err := decodeFilterTerm(sub)
			if err != nil {
				return filter.Predicate{}, err
			}
			return filter.Not(inner), nil
		}
		return filter.Predicate{}, fmt.Errorf("triplit: unrecognized write-rule object %v", v)
	default:
		return filter.Predicate{}, fmt.Errorf("triplit: unrecognized write-rule term %v (%T)", raw, raw)
	}
}

func decodeFilterCombinator(raw any, and bool) (filter.Predicate, error) {
	items, ok := raw.([]any)
	if !ok {
		return filter.Predicate{}, fmt.Errorf("triplit: and/or write-rule term expects a list, got %T", raw)
	}
	preds := make([]filter.Predicate, 0, len(items))
	for _, item := range items {
		p, err := decodeFilterTerm(item)
		if err != nil {
			return filter.Predicate{}, err
		}
		preds = append(preds, p)
	}
	if and {
		return filter.And(preds...), nil
	}
	return filter.Or(preds...), nil
}

func decodeFilterPath(raw any) (triple.Path, error) {
	switch v := raw.(type) {
	case string:
		return triple.Path{v}, nil
	case []any:
		return triple.Path(v), nil
	default:
		return nil, fmt.Errorf("triplit: write-rule path must be a string or list, got %T", raw)
	}
}

// evaluateWriteRule decodes rule's filter and runs it against doc (a
// plain, not-yet-committed document), resolving `$variable` references
// against vars.
func evaluateWriteRule(rule schema.WriteRule, doc map[string]any, vars map[string]any) (bool, error) {
	pred, err := decodeFilter(rule.Filter)
	if err != nil {
		return false, err
	}
	return filter.Evaluate(pred, plainToObject(doc), vars)
}

// plainToObject wraps a plain document's values as a codec.Object so
// the filter evaluator (which only knows Object/Leaf) can run against a
// document that hasn't gone through the triple store yet, e.g. the
// candidate value a write rule checks before commit.
func plainToObject(doc map[string]any) codec.Object {
	out := make(codec.Object, len(doc))
	for k, v := range doc {
		out[k] = plainValueToNode(v)
	}
	return out
}

func plainValueToNode(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return plainToObject(t)
	case []any:
		node := codec.Object{}
		for _, member := range t {
			node[member] = codec.Leaf{Value: true}
		}
		return node
	default:
		return codec.Leaf{Value: v}
	}
}
