// cmd/triplit-cli/query.go

package main

import (
	"fmt"

	"github.com/itoxiq/triplit/internal/filter"
	"github.com/itoxiq/triplit/internal/triple"
)

// queryDoc is the JSON shape "query <collection> <json>" accepts:
//
//	{"where": [...], "order_by": [{"path": ["age"], "desc": true}],
//	 "limit": 10, "offset": 0, "distinct": true}
//
// "where" follows the same convention as triplit's write-rule filters:
// a bare bool, a [path, op, value] clause, an {"and"|"or": [...]} or
// {"not": ...} combinator, or a list treated as an implicit "and".
type queryDoc struct {
	Where    any `json:"where"`
	OrderBy  []struct {
		Path []any `json:"path"`
		Desc bool  `json:"desc"`
	} `json:"order_by"`
	Limit    int  `json:"limit"`
	Offset   int  `json:"offset"`
	Distinct bool `json:"distinct"`
}

func parseQuery(collection string, raw []byte) (filter.Query, error) {
	var doc queryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return filter.Query{}, fmt.Errorf("invalid query JSON: %w", err)
	}

	where := filter.Predicate{}
	if doc.Where != nil {
		pred, err := decodeFilter(doc.Where)
		if err != nil {
			return filter.Query{}, err
		}
		where = pred
	}

	order := make([]filter.OrderTerm, 0, len(doc.OrderBy))
	for _, term := range doc.OrderBy {
		order = append(order, filter.OrderTerm{Path: triple.Path(term.Path), Descending: term.Desc})
	}

	return filter.Query{
		Collection: collection,
		Where:      where,
		OrderBy:    order,
		Limit:      doc.Limit,
		Offset:     doc.Offset,
		Distinct:   doc.Distinct,
	}, nil
}

// decodeFilter mirrors the root package's own write-rule filter
// decoder (rules.go), reimplemented here since that one is unexported:
// this CLI only ever needs it to build read-side filter.Query values.
func decodeFilter(raw any) (filter.Predicate, error) {
	if list, ok := raw.([]any); ok {
		if len(list) == 3 {
			if _, isOp := list[1].(string); isOp {
				return decodeClause(list)
			}
		}
		preds := make([]filter.Predicate, 0, len(list))
		for _, item := range list {
			p, err := decodeFilter(item)
			if err != nil {
				return filter.Predicate{}, err
			}
			preds = append(preds, p)
		}
		return filter.And(preds...), nil
	}
	return decodeFilterTerm(raw)
}

func decodeFilterTerm(raw any) (filter.Predicate, error) {
	switch v := raw.(type) {
	case bool:
		return filter.Literal(v), nil
	case []any:
		return decodeClause(v)
	case map[string]any:
		if inner, ok := v["and"]; ok {
			return decodeCombinator(inner, true)
		}
		if inner, ok := v["or"]; ok {
			return decodeCombinator(inner, false)
		}
		if inner, ok := v["not"]; ok {
			p, err := decodeFilter(inner)
			if err != nil {
				return filter.Predicate{}, err
			}
			return filter.Not(p), nil
		}
		return filter.Predicate{}, fmt.Errorf("filter object must have exactly one of and/or/not")
	default:
		return filter.Predicate{}, fmt.Errorf("unrecognized filter term %#v", raw)
	}
}

func decodeCombinator(raw any, and bool) (filter.Predicate, error) {
	list, ok := raw.([]any)
	if !ok {
		return filter.Predicate{}, fmt.Errorf("and/or must be a list")
	}
	preds := make([]filter.Predicate, 0, len(list))
	for _, item := range list {
		p, err := decodeFilter(item)
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

func decodeClause(list []any) (filter.Predicate, error) {
	if len(list) != 3 {
		return filter.Predicate{}, fmt.Errorf("clause must be [path, op, value], got %v", list)
	}
	path, err := decodeFilterPath(list[0])
	if err != nil {
		return filter.Predicate{}, err
	}
	op, ok := list[1].(string)
	if !ok {
		return filter.Predicate{}, fmt.Errorf("clause operator must be a string")
	}
	return filter.Where(path, filter.Op(op), list[2]), nil
}

func decodeFilterPath(raw any) (triple.Path, error) {
	switch v := raw.(type) {
	case string:
		return triple.Path{v}, nil
	case []any:
		return triple.Path(v), nil
	default:
		return nil, fmt.Errorf("filter path must be a string or a list, got %#v", raw)
	}
}
