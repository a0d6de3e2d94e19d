// Package codec implements the bidirectional mapping between plain
// documents, timestamped objects, and triples (component C4).
//
// Plain document ⇄ triples is schema-aware when a schema is supplied:
// the attribute map tells the walker exactly which paths are sets,
// records, or scalars. Without a schema (a dynamic collection) the
// walker falls back to a structural convention: a Go slice (`[]any`)
// in the document is a set, a nested `map[string]any` is a record, and
// anything else is a scalar leaf.
package codec

import (
	"fmt"
	"sort"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/triple"
)

// Leaf is a single timestamped value: the leaf shape every path in a
// timestamped object eventually bottoms out at.
type Leaf struct {
	Value     any
	Timestamp clock.Timestamp
}

// Object is the timestamped materialization of an entity: every key maps
// to either a Leaf or a nested Object. Keys are the raw path segment
// values (usually strings, but set members may be numbers or bools), so
// Object is keyed by `any` rather than `string`.
type Object map[any]any

// PlainToTriples explodes a plain document into triples for entity
// (collection, id) at commit timestamp ts. attrs is the collection's
// attribute map; pass nil for a schemaless walk.
func PlainToTriples(collection, id string, doc map[string]any, ts clock.Timestamp, attrs schema.AttributeMap) ([]triple.Triple, error) {
	e := triple.EntityID{Collection: collection, ID: id}
	var out []triple.Triple
	if err := walkPlain(e, triple.Path{collection}, doc, ts, attrs, &out); err != nil {
		return nil, err
	}
	out = append(out, triple.Triple{E: e, A: triple.CollectionMarkerPath, V: collection, T: ts})
	return out, nil
}

func walkPlain(e triple.EntityID, base triple.Path, doc map[string]any, ts clock.Timestamp, attrs schema.AttributeMap, out *[]triple.Triple) error {
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := doc[name]
		path := base.Append(name)

		if attrs != nil {
			desc, ok := attrs[name]
			if !ok {
				return schema.UnknownAttributeError(e.Collection, path)
			}
			if err := walkAttribute(e, path, value, ts, desc, out); err != nil {
				return err
			}
			continue
		}

		switch v := value.(type) {
		case map[string]any:
			if err := walkPlain(e, path, v, ts, nil, out); err != nil {
				return err
			}
		case []any:
			emitSetMembers(e, path, v, ts, out)
		default:
			*out = append(*out, triple.Triple{E: e, A: path, V: value, T: ts})
		}
	}
	return nil
}

func walkAttribute(e triple.EntityID, path triple.Path, value any, ts clock.Timestamp, desc schema.AttributeDescriptor, out *[]triple.Triple) error {
	inner, _ := desc.Unwrap()
	if value == nil && inner.Kind != schema.KindRecord {
		*out = append(*out, triple.Triple{E: e, A: path, V: nil, T: ts})
		return nil
	}

	switch inner.Kind {
	case schema.KindRecord:
		fields, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("codec: %s expected a record, got %T", path.String(), value)
		}
		return walkPlain(e, path, fields, ts, inner.Fields, out)
	case schema.KindSet:
		members, ok := value.([]any)
		if !ok {
			return fmt.Errorf("codec: %s expected a set (slice), got %T", path.String(), value)
		}
		emitSetMembers(e, path, members, ts, out)
		return nil
	default:
		*out = append(*out, triple.Triple{E: e, A: path, V: value, T: ts})
		return nil
	}
}

func emitSetMembers(e triple.EntityID, path triple.Path, members []any, ts clock.Timestamp, out *[]triple.Triple) {
	for _, m := range members {
		*out = append(*out, triple.Triple{E: e, A: path.Append(m), V: true, T: ts})
	}
}

// TriplesToObject reduces an entity's current triples into a timestamped
// Object, dropping the synthetic collection marker and any tombstoned
// triple. Triples must all share the same entity and begin with
// collection as their first path segment (as triplestore.Current
// returns, which reports the latest triple per path whether or not it
// is expired).
func TriplesToObject(triples []triple.Triple, collection string) Object {
	root := Object{}
	for _, t := range triples {
		if t.A.Equal(triple.CollectionMarkerPath) {
			continue
		}
		if t.Expired {
			continue
		}
		segs := []any(t.A)
		if len(segs) > 0 {
			segs = segs[1:] // drop the leading collection segment
		}
		if len(segs) == 0 {
			continue
		}
		insert(root, segs, Leaf{Value: t.V, Timestamp: t.T})
	}
	return root
}

func insert(node Object, segs []any, leaf Leaf) {
	seg := segs[0]
	if len(segs) == 1 {
		node[seg] = leaf
		return
	}
	child, ok := node[seg].(Object)
	if !ok {
		child = Object{}
		node[seg] = child
	}
	insert(child, segs[1:], leaf)
}

// ObjectToPlain collapses a timestamped Object back into a plain
// document, dropping timestamps. attrs enables schema-aware Set/Record
// disambiguation; pass nil to use the structural heuristic (a node whose
// children are all boolean leaves is a set, otherwise it's a record).
func ObjectToPlain(o Object, attrs schema.AttributeMap) map[string]any {
	out := make(map[string]any, len(o))
	for k, v := range o {
		name, ok := k.(string)
		if !ok {
			continue
		}
		if attrs != nil {
			if desc, ok := attrs[name]; ok {
				rendered, present := renderWithSchema(v, desc)
				if present {
					out[name] = rendered
				}
				continue
			}
		}
		if rendered, present := renderHeuristic(v); present {
			out[name] = rendered
		}
	}
	return out
}

func renderWithSchema(v any, desc schema.AttributeDescriptor) (any, bool) {
	inner, _ := desc.Unwrap()
	switch inner.Kind {
	case schema.KindSet:
		obj, ok := v.(Object)
		if !ok {
			if leaf, ok := v.(Leaf); ok && leaf.Value == nil {
				return nil, true
			}
			return []any{}, true
		}
		return renderSetMembers(obj), true
	case schema.KindRecord:
		obj, ok := v.(Object)
		if !ok {
			return nil, true
		}
		return ObjectToPlain(obj, inner.Fields), true
	default:
		leaf, ok := v.(Leaf)
		if !ok {
			return nil, false
		}
		return leaf.Value, true
	}
}

func renderHeuristic(v any) (any, bool) {
	switch n := v.(type) {
	case Leaf:
		return n.Value, true
	case Object:
		if isSetShape(n) {
			return renderSetMembers(n), true
		}
		return ObjectToPlain(n, nil), true
	default:
		return nil, false
	}
}

// isSetShape reports whether every child of node is a boolean leaf,
// the structural signature PlainToTriples leaves behind for a set.
func isSetShape(node Object) bool {
	if len(node) == 0 {
		return false
	}
	for _, v := range node {
		leaf, ok := v.(Leaf)
		if !ok {
			return false
		}
		if _, ok := leaf.Value.(bool); !ok {
			return false
		}
	}
	return true
}

// Lookup descends path through obj, returning the scalar value at its
// end, if any. A path through a missing branch, or one that lands on a
// record/set node rather than a leaf, reports found = false.
func Lookup(obj Object, path triple.Path) (value any, found bool) {
	var node any = obj
	for _, seg := range path {
		current, ok := node.(Object)
		if !ok {
			return nil, false
		}
		child, ok := current[seg]
		if !ok {
			return nil, false
		}
		node = child
	}
	switch n := node.(type) {
	case Leaf:
		return n.Value, true
	default:
		return nil, false
	}
}

// HasMember reports whether the set at path currently has member as a
// live (non-tombstoned) value.
func HasMember(obj Object, path triple.Path, member any) bool {
	var node any = obj
	for _, seg := range path {
		current, ok := node.(Object)
		if !ok {
			return false
		}
		child, ok := current[seg]
		if !ok {
			return false
		}
		node = child
	}
	set, ok := node.(Object)
	if !ok {
		return false
	}
	leaf, ok := set[member].(Leaf)
	if !ok {
		return false
	}
	b, _ := leaf.Value.(bool)
	return b
}

func renderSetMembers(node Object) []any {
	members := make([]any, 0, len(node))
	for k, v := range node {
		leaf, ok := v.(Leaf)
		if !ok {
			continue
		}
		if b, ok := leaf.Value.(bool); ok && b {
			members = append(members, k)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		return fmt.Sprint(members[i]) < fmt.Sprint(members[j])
	})
	return members
}
