package schemadiff

import (
	"context"
	"fmt"
	"time"

	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/triple"
	"github.com/itoxiq/triplit/internal/triplestore"
)

// Issue reports that an IncompatibleEdit actually conflicts with data
// already sitting in the store, as opposed to being merely theoretically
// unsafe against some hypothetical future row.
type Issue struct {
	Edit                 IncompatibleEdit
	ViolatesExistingData bool
	Reason               string
}

// GetSchemaDiffIssues checks each backwards-incompatible edit against the
// store's actual contents. An edit whose collection is empty, or whose
// specific violation never occurs in any stored entity, is reported with
// ViolatesExistingData = false: it's unsafe in general but harmless here.
func GetSchemaDiffIssues(ctx context.Context, store *triplestore.Store, edits []IncompatibleEdit) ([]Issue, error) {
	issues := make([]Issue, 0, len(edits))
	for _, edit := range edits {
		violates, reason, err := checkEdit(ctx, store, edit)
		if err != nil {
			return nil, err
		}
		issues = append(issues, Issue{Edit: edit, ViolatesExistingData: violates, Reason: reason})
	}
	return issues, nil
}

// storedPath turns a diff's collection-relative attribute path (e.g.
// ["color"]) into the collection-prefixed path triples are actually
// stored under (e.g. ["widgets", "color"]), per the data model's
// "always prefixed by the owning collection" rule.
func storedPath(collection string, attr triple.Path) triple.Path {
	out := make(triple.Path, 0, len(attr)+1)
	out = append(out, collection)
	out = append(out, attr...)
	return out
}

func checkEdit(ctx context.Context, store *triplestore.Store, edit IncompatibleEdit) (bool, string, error) {
	d := edit.Diff
	path := storedPath(d.Collection, d.Attribute)
	switch edit.Rule {
	case "B1":
		return checkAttributePresent(ctx, store, d.Collection, path)
	case "B2":
		return checkCollectionNonEmpty(ctx, store, d.Collection)
	case "B3":
		return checkTypeMismatch(ctx, store, d.Collection, path, d.Changes.Type.To)
	case "B4":
		return checkAttributeMissing(ctx, store, d.Collection, path)
	case "B5":
		return checkAttributeNull(ctx, store, d.Collection, path)
	case "B6":
		return checkEnumViolation(ctx, store, d.Collection, path, d.Changes.Enum.To)
	case "B7":
		if violates, reason, handled, err := checkRecordFieldTypeChange(ctx, store, d.Collection, path, d.Changes); handled {
			return violates, reason, err
		}
		return checkPrefixScan(ctx, store, d.Collection, path, fmt.Sprintf("record field removal/incompatibility under %s", d.Attribute.String()))
	case "B8":
		// Each set member lives at path+member, a distinct attribute-index
		// row per member, so there's no single key to look up; fall back
		// to a scan under the set's own attribute path.
		return checkPrefixScan(ctx, store, d.Collection, path, fmt.Sprintf("set item incompatibility under %s", d.Attribute.String()))
	default:
		return false, "", nil
	}
}

// checkAttributePresent implements B1's data check: deleting a
// non-optional attribute only breaks existing data if some entity
// actually has a live value there.
func checkAttributePresent(ctx context.Context, store *triplestore.Store, collection string, path triple.Path) (bool, string, error) {
	entities, err := store.FindByAttribute(ctx, collection, path, func(value any, expired bool) bool {
		return !expired && value != nil
	})
	if err != nil {
		return false, "", err
	}
	if len(entities) > 0 {
		return true, fmt.Sprintf("%s has live values in %s", path.String(), collection), nil
	}
	return false, "", nil
}

// checkCollectionNonEmpty implements B2's data check: inserting a
// non-optional attribute is only a real problem if the collection
// already has entities, none of which carry a value for the new path.
func checkCollectionNonEmpty(ctx context.Context, store *triplestore.Store, collection string) (bool, string, error) {
	entities, err := store.CollectionEntities(ctx, collection)
	if err != nil {
		return false, "", err
	}
	if len(entities) > 0 {
		return true, fmt.Sprintf("%s already has %d entities with no value for the new attribute", collection, len(entities)), nil
	}
	return false, "", nil
}

// checkAttributeMissing implements B4's data check: optional -> required
// only bites entities that are currently missing the attribute entirely.
func checkAttributeMissing(ctx context.Context, store *triplestore.Store, collection string, path triple.Path) (bool, string, error) {
	entities, err := store.CollectionEntities(ctx, collection)
	if err != nil {
		return false, "", err
	}
	for _, e := range entities {
		current, err := store.Current(ctx, e)
		if err != nil {
			return false, "", err
		}
		has := false
		for _, t := range current {
			if t.A.Equal(path) && !t.Expired {
				has = true
				break
			}
		}
		if !has {
			return true, fmt.Sprintf("%s#%s has no value for %s", collection, e.ID, path.String()), nil
		}
	}
	return false, "", nil
}

// checkAttributeNull implements B5's data check: nullable -> non-nullable
// only bites entities that currently store an explicit nil there.
func checkAttributeNull(ctx context.Context, store *triplestore.Store, collection string, path triple.Path) (bool, string, error) {
	entities, err := store.FindByAttribute(ctx, collection, path, func(value any, expired bool) bool {
		return !expired && value == nil
	})
	if err != nil {
		return false, "", err
	}
	if len(entities) > 0 {
		return true, fmt.Sprintf("%d entities in %s store a null %s", len(entities), collection, path.String()), nil
	}
	return false, "", nil
}

// checkTypeMismatch implements B3's data check: a descriptor's type
// change is only a real break for entities whose stored value doesn't
// already match the new Go representation.
func checkTypeMismatch(ctx context.Context, store *triplestore.Store, collection string, path triple.Path, newKind schema.Kind) (bool, string, error) {
	entities, err := store.FindByAttribute(ctx, collection, path, func(value any, expired bool) bool {
		return !expired && value != nil && !matchesKind(value, newKind)
	})
	if err != nil {
		return false, "", err
	}
	if len(entities) > 0 {
		return true, fmt.Sprintf("%d entities in %s hold a %s value incompatible with %s", len(entities), collection, path.String(), newKind), nil
	}
	return false, "", nil
}

// checkEnumViolation implements B6's data check: a narrowed or newly
// introduced enum only matters for entities whose current value falls
// outside the new allowed set.
func checkEnumViolation(ctx context.Context, store *triplestore.Store, collection string, path triple.Path, allowed []any) (bool, string, error) {
	entities, err := store.FindByAttribute(ctx, collection, path, func(value any, expired bool) bool {
		if expired || value == nil {
			return false
		}
		for _, a := range allowed {
			if fmt.Sprintf("%v", a) == fmt.Sprintf("%v", value) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return false, "", err
	}
	if len(entities) > 0 {
		return true, fmt.Sprintf("%d entities in %s hold a %s value outside the new enum", len(entities), collection, path.String()), nil
	}
	return false, "", nil
}

// checkRecordFieldTypeChange narrows B7's check when every unsafe field
// change in changes is a pure type change: instead of treating any live
// data under the record's path as a violation, it checks each changed
// field's own stored values against its new kind, the same way B3 does
// for a top-level scalar. handled is false for any other shape of change
// (field removal, a newly required field, nullable/enum narrowing, a
// nested record or set) so the caller falls back to the conservative
// prefix scan for those.
func checkRecordFieldTypeChange(ctx context.Context, store *triplestore.Store, collection string, path triple.Path, changes *Changes) (violates bool, reason string, handled bool, err error) {
	if changes == nil || len(changes.Fields) == 0 {
		return false, "", false, nil
	}
	for _, fc := range changes.Fields {
		if fc.Type != EditUpdate || fc.Changes == nil || fc.Changes.Type == nil {
			return false, "", false, nil
		}
		c := fc.Changes
		if c.Optional != nil || c.Nullable != nil || c.Enum != nil || c.Default != nil || len(c.Fields) > 0 || c.Nested != nil {
			return false, "", false, nil
		}
	}
	for name, fc := range changes.Fields {
		v, r, checkErr := checkTypeMismatch(ctx, store, collection, path.Append(name), fc.Changes.Type.To)
		if checkErr != nil {
			return false, "", true, checkErr
		}
		if v {
			return true, r, true, nil
		}
	}
	return false, "", true, nil
}

// checkPrefixScan implements B7/B8's data check: a nested record field or
// a set's members aren't a single attribute-index key, so fall back to a
// full scan of every current triple under the affected path prefix.
func checkPrefixScan(ctx context.Context, store *triplestore.Store, collection string, prefix triple.Path, reason string) (bool, string, error) {
	violates := false
	err := store.CollectionAttributePrefixScan(ctx, collection, prefix, func(_ triple.EntityID, _ triple.Triple) bool {
		violates = true
		return false // one hit is enough to prove the edit touches live data
	})
	if err != nil {
		return false, "", err
	}
	if violates {
		return true, reason, nil
	}
	return false, "", nil
}

// matchesKind reports whether v's Go dynamic type is the representation
// triplit uses for kind. Set/Record/Optional aren't single scalar triple
// values, so they're never the target of a B3 type-change check.
func matchesKind(v any, kind schema.Kind) bool {
	switch kind {
	case schema.KindString, schema.KindID:
		_, ok := v.(string)
		return ok
	case schema.KindNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		default:
			return false
		}
	case schema.KindBoolean:
		_, ok := v.(bool)
		return ok
	case schema.KindDate:
		_, ok := v.(time.Time)
		return ok
	default:
		return true
	}
}
