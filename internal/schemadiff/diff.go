// Package schemadiff implements the schema diff engine (component C8)
// and the data-safety checker built on top of it (component C9).
package schemadiff

import (
	"fmt"
	"sort"

	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/triple"
)

// Discriminant tags which kind of change a Diff record describes.
type Discriminant string

const (
	DiffCollectionAttribute   Discriminant = "collectionAttribute"
	DiffCollectionRules       Discriminant = "collectionRules"
	DiffCollectionPermissions Discriminant = "collectionPermissions"
	DiffRoles                 Discriminant = "roles"
)

// EditType tags whether an attribute was added, removed, or changed.
type EditType string

const (
	EditInsert EditType = "insert"
	EditDelete EditType = "delete"
	EditUpdate EditType = "update"
)

// BoolChange records a before/after pair for a boolean-valued field.
type BoolChange struct{ From, To bool }

// TypeChange records a descriptor kind change.
type TypeChange struct{ From, To schema.Kind }

// DefaultChange records a before/after pair for a default-value spec.
type DefaultChange struct{ From, To *schema.DefaultSpec }

// EnumChange records a before/after pair for an enum constraint.
type EnumChange struct{ From, To []any }

// FieldChange describes how a single field inside a Record changed.
type FieldChange struct {
	Type     EditType
	Metadata *schema.AttributeDescriptor // set for insert/delete
	Changes  *Changes                    // set for update
}

// Changes holds only the fields that actually differ between two
// descriptors, per the spec's "structural object containing only the
// differing fields" rule.
type Changes struct {
	Type     *TypeChange
	Optional *BoolChange
	Nullable *BoolChange
	Default  *DefaultChange
	Enum     *EnumChange
	Fields   map[string]FieldChange // Record field-level changes
	Nested   *Changes                // Set item-descriptor changes
}

// Diff is one record in a schema diff's result list.
type Diff struct {
	Discriminant    Discriminant
	Collection      string
	Type            EditType // meaningful only for DiffCollectionAttribute
	Attribute       triple.Path
	Metadata        *schema.AttributeDescriptor // insert/delete
	Changes         *Changes                    // update
	IsNewCollection bool
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DiffSchemas computes the structured diff between old and new, sorted
// deterministically by (collection, attributePath, discriminant).
func DiffSchemas(old, new *schema.Schema) []Diff {
	var diffs []Diff

	oldCollections := map[string]schema.CollectionDef{}
	newCollections := map[string]schema.CollectionDef{}
	if old != nil {
		oldCollections = old.Collections
	}
	if new != nil {
		newCollections = new.Collections
	}

	for _, name := range unionKeys(oldCollections, newCollections) {
		oldDef, oldOK := oldCollections[name]
		newDef, newOK := newCollections[name]
		switch {
		case !oldOK && newOK:
			diffs = append(diffs, diffCollectionAttributes(name, nil, newDef.Schema, true)...)
		case oldOK && !newOK:
			diffs = append(diffs, diffCollectionAttributes(name, oldDef.Schema, nil, false)...)
		default:
			diffs = append(diffs, diffCollectionAttributes(name, oldDef.Schema, newDef.Schema, false)...)
			if !schema.RulesEqual(oldDef.Rules, newDef.Rules) {
				diffs = append(diffs, Diff{Discriminant: DiffCollectionRules, Collection: name})
			}
			if !schema.PermissionsEqual(oldDef.Permissions, newDef.Permissions) {
				diffs = append(diffs, Diff{Discriminant: DiffCollectionPermissions, Collection: name})
			}
		}
	}

	var oldRoles, newRoles map[string]schema.RoleDef
	if old != nil {
		oldRoles = old.Roles
	}
	if new != nil {
		newRoles = new.Roles
	}
	if !schema.RolesEqual(oldRoles, newRoles) {
		diffs = append(diffs, Diff{Discriminant: DiffRoles})
	}

	sortDiffs(diffs)
	return diffs
}

func diffCollectionAttributes(collection string, oldAttrs, newAttrs schema.AttributeMap, isNewCollection bool) []Diff {
	var diffs []Diff
	for _, name := range unionKeys(oldAttrs, newAttrs) {
		oldDesc, oldOK := oldAttrs[name]
		newDesc, newOK := newAttrs[name]
		path := triple.Path{name}

		switch {
		case !oldOK && newOK:
			d := newDesc
			diffs = append(diffs, Diff{
				Discriminant:    DiffCollectionAttribute,
				Collection:      collection,
				Type:            EditInsert,
				Attribute:       path,
				Metadata:        &d,
				IsNewCollection: isNewCollection,
			})
		case oldOK && !newOK:
			d := oldDesc
			diffs = append(diffs, Diff{
				Discriminant: DiffCollectionAttribute,
				Collection:   collection,
				Type:         EditDelete,
				Attribute:    path,
				Metadata:     &d,
			})
		default:
			if changes := diffDescriptor(oldDesc, newDesc); changes != nil {
				diffs = append(diffs, Diff{
					Discriminant: DiffCollectionAttribute,
					Collection:   collection,
					Type:         EditUpdate,
					Attribute:    path,
					Changes:      changes,
				})
			}
		}
	}
	return diffs
}

func diffDescriptor(oldDesc, newDesc schema.AttributeDescriptor) *Changes {
	changes := &Changes{}
	changed := false

	oldOptional := oldDesc.Kind == schema.KindOptional
	newOptional := newDesc.Kind == schema.KindOptional
	if oldOptional != newOptional {
		changes.Optional = &BoolChange{From: oldOptional, To: newOptional}
		changed = true
	}

	oldInner, _ := oldDesc.Unwrap()
	newInner, _ := newDesc.Unwrap()

	if oldInner.Kind != newInner.Kind {
		changes.Type = &TypeChange{From: oldInner.Kind, To: newInner.Kind}
		changed = true
	}
	if oldInner.Options.Nullable != newInner.Options.Nullable {
		changes.Nullable = &BoolChange{From: oldInner.Options.Nullable, To: newInner.Options.Nullable}
		changed = true
	}
	if !defaultEqual(oldInner.Options.Default, newInner.Options.Default) {
		changes.Default = &DefaultChange{From: oldInner.Options.Default, To: newInner.Options.Default}
		changed = true
	}
	if !enumEqual(oldInner.Options.Enum, newInner.Options.Enum) {
		changes.Enum = &EnumChange{From: oldInner.Options.Enum, To: newInner.Options.Enum}
		changed = true
	}
	if oldInner.Kind == schema.KindRecord && newInner.Kind == schema.KindRecord {
		if fields := diffRecordFields(oldInner.Fields, newInner.Fields); len(fields) > 0 {
			changes.Fields = fields
			changed = true
		}
	}
	if oldInner.Kind == schema.KindSet && newInner.Kind == schema.KindSet && oldInner.Item != nil && newInner.Item != nil {
		if nested := diffDescriptor(*oldInner.Item, *newInner.Item); nested != nil {
			changes.Nested = nested
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return changes
}

func diffRecordFields(oldFields, newFields schema.AttributeMap) map[string]FieldChange {
	out := map[string]FieldChange{}
	for _, name := range unionKeys(oldFields, newFields) {
		oldF, oldOK := oldFields[name]
		newF, newOK := newFields[name]
		switch {
		case !oldOK && newOK:
			d := newF
			out[name] = FieldChange{Type: EditInsert, Metadata: &d}
		case oldOK && !newOK:
			d := oldF
			out[name] = FieldChange{Type: EditDelete, Metadata: &d}
		default:
			if c := diffDescriptor(oldF, newF); c != nil {
				out[name] = FieldChange{Type: EditUpdate, Changes: c}
			}
		}
	}
	return out
}

func defaultEqual(a, b *schema.DefaultSpec) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Func == b.Func && fmt.Sprintf("%v", a.Args) == fmt.Sprintf("%v", b.Args)
}

func enumEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if fmt.Sprintf("%v", a[i]) != fmt.Sprintf("%v", b[i]) {
			return false
		}
	}
	return true
}

// sortDiffs orders diffs by (collection, attributePath, discriminant)
// to make diffSchemas's output stable across runs.
func sortDiffs(diffs []Diff) {
	sort.SliceStable(diffs, func(i, j int) bool {
		a, b := diffs[i], diffs[j]
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		if ap, bp := a.Attribute.String(), b.Attribute.String(); ap != bp {
			return ap < bp
		}
		return a.Discriminant < b.Discriminant
	})
}
