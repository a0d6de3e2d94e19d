// Package triple defines the core EAV data model every other component
// builds on: entity identifiers, attribute paths, and the triple itself.
package triple

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/terrors"
)

// EntityID identifies one entity as "<collection>#<externalId>".
type EntityID struct {
	Collection string
	ID         string
}

// String renders the entity id in wire form.
func (e EntityID) String() string {
	return e.Collection + "#" + e.ID
}

// ParseEntityID splits a "<collection>#<externalId>" string back into an
// EntityID, rejecting anything that doesn't have exactly one separator
// and non-empty halves.
func ParseEntityID(s string) (EntityID, error) {
	i := strings.IndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return EntityID{}, terrors.New(terrors.InvalidEntityId,
			fmt.Sprintf("%q is not a valid entity id", s))
	}
	collection, id := s[:i], s[i+1:]
	if strings.IndexByte(id, '#') >= 0 {
		return EntityID{}, terrors.New(terrors.InvalidEntityId,
			fmt.Sprintf("%q is not a valid entity id", s))
	}
	return EntityID{Collection: collection, ID: id}, nil
}

// Path is an ordered attribute path: a sequence of string or numeric
// segments, always prefixed by the owning collection's name. Numeric
// segments appear when a path descends into a record keyed by an
// index-like name. The segment "[]" (schema.SetItemSentinel) is reserved
// for a set's item descriptor; the schema-diff walker does not emit it.
type Path []any

// String renders a path as a dot-joined key, used as the attribute
// component of an ordered KV key.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		switch v := seg.(type) {
		case string:
			parts[i] = v
		case int:
			parts[i] = strconv.Itoa(v)
		case float64:
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		case bool:
			parts[i] = strconv.FormatBool(v)
		default:
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return strings.Join(parts, ".")
}

// Append returns a new path with seg appended, leaving p untouched.
func (p Path) Append(seg any) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

// Equal reports whether two paths have identical segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if fmt.Sprintf("%v", p[i]) != fmt.Sprintf("%v", other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p begins with every segment of prefix, in
// order. Used to find every triple under a renamed or dropped attribute.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if fmt.Sprintf("%v", p[i]) != fmt.Sprintf("%v", prefix[i]) {
			return false
		}
	}
	return true
}

// CollectionMarkerPath is the synthetic attribute every entity carries so
// its collection is discoverable by attribute scan.
var CollectionMarkerPath = Path{"_collection"}

// Value is a primitive leaf value. IsScalar reports whether a value is
// one of the leaf types; the codec does not enforce it and stores any
// leaf value it is given.
type Value = any

// Triple is one EAV fact: entity E holds value V at path A as of
// timestamp T, with Expired marking it a tombstone.
type Triple struct {
	E       EntityID
	A       Path
	V       Value
	T       clock.Timestamp
	Expired bool
}

// IsScalar reports whether v is one of the primitive leaf types triplit
// allows as a triple value: string, float64, bool, time.Time, or nil.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, bool, time.Time:
		return true
	default:
		return false
	}
}
