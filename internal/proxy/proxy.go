// Package proxy implements the change-tracking write proxy (component
// C6): update fetches an entity, wraps it in an Entity whose mutations
// are staged into a side map rather than applied directly, and converts
// the staged changes into triples at a single commit timestamp.
package proxy

import (
	"fmt"
	"sort"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/codec"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"
)

// setOp is one staged mutation against a set attribute.
type setOp struct {
	member any
	add    bool // true = add(member), false = remove(member)
}

// Entity is the staged view of one fetched document. Reads consult
// staged changes first, then fall back to the entity's current value;
// writes only ever touch the staging map, never the underlying Object.
type Entity struct {
	id         triple.EntityID
	collection string
	attrs      schema.AttributeMap // nil for a schemaless collection
	current    codec.Object

	scalars map[string]any         // path.String() -> staged scalar value
	sets    map[string][]setOp     // path.String() -> staged set ops, in order
	paths   map[string]triple.Path // path.String() -> the Path itself, for commit
}

// New wraps a fetched entity's current triples in a staging proxy.
func New(id triple.EntityID, attrs schema.AttributeMap, current codec.Object) *Entity {
	return &Entity{
		id:         id,
		collection: id.Collection,
		attrs:      attrs,
		current:    current,
		scalars:    make(map[string]any),
		sets:       make(map[string][]setOp),
		paths:      make(map[string]triple.Path),
	}
}

func (e *Entity) descriptorAt(path triple.Path) (schema.AttributeDescriptor, bool) {
	if e.attrs == nil || len(path) == 0 {
		return schema.AttributeDescriptor{}, false
	}
	name, ok := path[0].(string)
	if !ok {
		return schema.AttributeDescriptor{}, false
	}
	desc, ok := e.attrs[name]
	if !ok {
		return schema.AttributeDescriptor{}, false
	}
	rest := path[1:]
	for len(rest) > 0 {
		inner, _ := desc.Unwrap()
		switch inner.Kind {
		case schema.KindRecord:
			key, ok := rest[0].(string)
			if !ok {
				return schema.AttributeDescriptor{}, false
			}
			next, ok := inner.Fields[key]
			if !ok {
				return schema.AttributeDescriptor{}, false
			}
			desc, rest = next, rest[1:]
		case schema.KindSet:
			desc, rest = *inner.Item, rest[1:]
		default:
			return schema.AttributeDescriptor{}, false
		}
	}
	return desc, true
}

// Get reads the value at path, preferring a staged scalar write over the
// entity's fetched value.
func (e *Entity) Get(path triple.Path) any {
	key := path.String()
	if v, ok := e.scalars[key]; ok {
		return v
	}
	v, _ := codec.Lookup(e.current, path)
	return v
}

// Set stages a scalar assignment at path. Assigning to a Set-typed path
// is rejected; stage set changes through SetAt and its SetHandle instead.
// Assigning to a path the schema doesn't know about fails with
// terrors.UnknownAttribute.
func (e *Entity) Set(path triple.Path, value any) error {
	if desc, ok := e.descriptorAt(path); ok {
		inner, _ := desc.Unwrap()
		if inner.Kind == schema.KindSet {
			return fmt.Errorf("proxy: %s is a set attribute, use SetHandle.Add/Remove", path.String())
		}
	} else if e.attrs != nil {
		return schema.UnknownAttributeError(e.collection, path)
	}
	key := path.String()
	e.scalars[key] = value
	e.paths[key] = path
	return nil
}

// SetHandle exposes add/remove/has on a Set-typed attribute, preserving
// CRDT tombstone semantics: add/remove stage member-level boolean
// writes rather than replacing the set wholesale.
type SetHandle struct {
	entity *Entity
	path   triple.Path
}

// SetAt returns a handle onto the set attribute at path.
func (e *Entity) SetAt(path triple.Path) *SetHandle {
	return &SetHandle{entity: e, path: path}
}

// Add stages `(path + member, true)`.
func (h *SetHandle) Add(member any) {
	h.entity.stageSetOp(h.path, setOp{member: member, add: true})
}

// Remove stages `(path + member, false)`, a tombstone for that member.
func (h *SetHandle) Remove(member any) {
	h.entity.stageSetOp(h.path, setOp{member: member, add: false})
}

// Has reports whether member is currently in the set, consulting staged
// ops (most recent first) before falling back to the fetched set.
func (h *SetHandle) Has(member any) bool {
	key := h.path.String()
	ops := h.entity.sets[key]
	for i := len(ops) - 1; i >= 0; i-- {
		if equalMember(ops[i].member, member) {
			return ops[i].add
		}
	}
	return codec.HasMember(h.entity.current, h.path, member)
}

func (e *Entity) stageSetOp(path triple.Path, op setOp) {
	key := path.String()
	e.sets[key] = append(e.sets[key], op)
	e.paths[key] = path
}

func equalMember(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// Commit converts every staged change into triples at timestamp ts. Set
// ops collapse to their latest per-member state, since only the most
// recent add/remove for a given member matters at commit time.
func (e *Entity) Commit(ts clock.Timestamp) []triple.Triple {
	var out []triple.Triple

	keys := make([]string, 0, len(e.paths))
	for k := range e.paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := e.paths[key]
		if value, ok := e.scalars[key]; ok {
			out = append(out, triple.Triple{E: e.id, A: path, V: value, T: ts})
			continue
		}
		latest := map[string]setOp{}
		order := []string{}
		for _, op := range e.sets[key] {
			memberKey := fmt.Sprintf("%v", op.member)
			if _, seen := latest[memberKey]; !seen {
				order = append(order, memberKey)
			}
			latest[memberKey] = op
		}
		sort.Strings(order)
		for _, memberKey := range order {
			op := latest[memberKey]
			out = append(out, triple.Triple{E: e.id, A: path.Append(op.member), V: op.add, T: ts})
		}
	}
	return out
}

// HasStagedChanges reports whether any mutation was staged against e.
func (e *Entity) HasStagedChanges() bool {
	return len(e.paths) > 0
}

// ToPlain renders the entity's current-plus-staged state as a plain
// document, for write-rule re-evaluation and for returning the updated
// value to callers without a second fetch.
func (e *Entity) ToPlain() map[string]any {
	merged := make(codec.Object, len(e.current))
	for k, v := range e.current {
		merged[k] = v
	}
	zero := clock.Timestamp{}
	for key, path := range e.paths {
		if value, ok := e.scalars[key]; ok {
			setScalar(merged, path, codec.Leaf{Value: value, Timestamp: zero})
			continue
		}
		setMembers(merged, path, e.sets[key])
	}
	return codec.ObjectToPlain(merged, e.attrs)
}

func setScalar(root codec.Object, path triple.Path, leaf codec.Leaf) {
	node := root
	for i, seg := range path {
		if i == len(path)-1 {
			node[seg] = leaf
			return
		}
		child, ok := node[seg].(codec.Object)
		if !ok {
			child = codec.Object{}
			node[seg] = child
		}
		node = child
	}
}

func setMembers(root codec.Object, path triple.Path, ops []setOp) {
	node := root
	for _, seg := range path {
		child, ok := node[seg].(codec.Object)
		if !ok {
			child = codec.Object{}
			node[seg] = child
		}
		node = child
	}
	zero := clock.Timestamp{}
	for _, op := range ops {
		node[op.member] = codec.Leaf{Value: op.add, Timestamp: zero}
	}
}

// ValidateAgainstSchema checks every staged scalar write against its
// descriptor's enum/nullable constraints ahead of commit, so a doomed
// write fails before it reaches the store. Returns terrors.UnknownAttribute
// for a path with no descriptor when attrs is non-nil.
func (e *Entity) ValidateAgainstSchema() error {
	if e.attrs == nil {
		return nil
	}
	for key, path := range e.paths {
		value, isScalar := e.scalars[key]
		if !isScalar {
			continue
		}
		desc, ok := e.descriptorAt(path)
		if !ok {
			return schema.UnknownAttributeError(e.collection, path)
		}
		inner, _ := desc.Unwrap()
		if value == nil {
			if !inner.Options.Nullable {
				return terrors.New(terrors.WriteRuleViolation,
					fmt.Sprintf("%s is not nullable", path.String()))
			}
			continue
		}
		if len(inner.Options.Enum) > 0 && !enumContains(inner.Options.Enum, value) {
			return terrors.New(terrors.WriteRuleViolation,
				fmt.Sprintf("%s value %v is not in its enum", path.String(), value))
		}
	}
	return nil
}

func enumContains(enum []any, value any) bool {
	for _, v := range enum {
		if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}
