package schemadiff

import (
	"fmt"

	"github.com/itoxiq/triplit/internal/schema"
)

// IncompatibleEdit pairs a Diff with the backwards-compatibility rule it
// tripped (B1-B8).
type IncompatibleEdit struct {
	Diff Diff
	Rule string
}

// GetBackwardsIncompatibleEdits filters diffs down to the
// collection-attribute edits that are backwards-incompatible on their
// face, independent of whether any existing data actually violates them.
// That data-dependent question belongs to GetSchemaDiffIssues.
func GetBackwardsIncompatibleEdits(diffs []Diff) []IncompatibleEdit {
	var out []IncompatibleEdit
	for _, d := range diffs {
		if d.Discriminant != DiffCollectionAttribute {
			continue
		}
		if rule, unsafe := classify(d); unsafe {
			out = append(out, IncompatibleEdit{Diff: d, Rule: rule})
		}
	}
	return out
}

func classify(d Diff) (rule string, unsafe bool) {
	switch d.Type {
	case EditDelete:
		// B1: removing a non-optional attribute strands existing data
		// that relied on it being present.
		if d.Metadata != nil && !isOptional(*d.Metadata) {
			return "B1", true
		}
		return "", false
	case EditInsert:
		// B2: inserting a non-optional attribute makes every existing
		// entity, which has no value for it, instantly non-conformant.
		if d.Metadata != nil && !isOptional(*d.Metadata) {
			return "B2", true
		}
		return "", false
	case EditUpdate:
		return classifyUpdate(d.Changes)
	default:
		return "", false
	}
}

func classifyUpdate(c *Changes) (string, bool) {
	if c == nil {
		return "", false
	}
	if c.Type != nil {
		return "B3", true
	}
	if c.Optional != nil && c.Optional.From && !c.Optional.To {
		return "B4", true
	}
	if c.Nullable != nil && c.Nullable.From && !c.Nullable.To {
		return "B5", true
	}
	if c.Enum != nil {
		if rule, unsafe := classifyEnumChange(c.Enum); unsafe {
			return rule, true
		}
	}
	for _, field := range c.Fields {
		if rule, unsafe := classifyField(field); unsafe {
			return rule, true
		}
	}
	if c.Nested != nil {
		if rule, unsafe := classifySetItem(c.Nested); unsafe {
			return rule, true
		}
	}
	return "", false
}

// classifyEnumChange implements B6: widening (new is empty, or new is a
// superset of old) is safe; narrowing or introducing an enum onto a
// previously unconstrained attribute is not.
func classifyEnumChange(c *EnumChange) (string, bool) {
	if len(c.To) == 0 {
		return "", false // widened back to unconstrained
	}
	if len(c.From) == 0 {
		return "B6", true // introduced a constraint where none existed
	}
	if !isSuperset(c.To, c.From) {
		return "B6", true // narrowed the allowed set
	}
	return "", false
}

// classifyField implements B7 for a single Record field edit: removing a
// field, changing its type, or adding a non-optional field are unsafe.
func classifyField(f FieldChange) (string, bool) {
	switch f.Type {
	case EditDelete:
		return "B7", true
	case EditInsert:
		if f.Metadata != nil && !isOptional(*f.Metadata) {
			return "B7", true
		}
		return "", false
	case EditUpdate:
		if _, unsafe := classifyUpdate(f.Changes); unsafe {
			return "B7", true
		}
		return "", false
	default:
		return "", false
	}
}

// classifySetItem implements B8: a type change or a nullable-tightening
// of a Set's item descriptor is unsafe for members already stored.
func classifySetItem(c *Changes) (string, bool) {
	if c.Type != nil {
		return "B8", true
	}
	if c.Nullable != nil && c.Nullable.From && !c.Nullable.To {
		return "B8", true
	}
	return "", false
}

func isOptional(d schema.AttributeDescriptor) bool {
	_, optional := d.Unwrap()
	return optional
}

func isSuperset(superset, subset []any) bool {
	have := make(map[string]struct{}, len(superset))
	for _, v := range superset {
		have[fmt.Sprintf("%v", v)] = struct{}{}
	}
	for _, v := range subset {
		if _, ok := have[fmt.Sprintf("%v", v)]; !ok {
			return false
		}
	}
	return true
}
