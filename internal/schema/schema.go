// Package schema implements the typed attribute-descriptor model
// (component C5): a discriminated union describing what shape a
// collection's documents take, plus the rule/permission/role blobs that
// ride alongside it in the `_schema` namespace.
package schema

import (
	"fmt"
	"reflect"

	"github.com/itoxiq/triplit/internal/terrors"
	"github.com/itoxiq/triplit/internal/triple"

	"golang.org/x/crypto/bcrypt"
)

// Kind tags which variant of the AttributeDescriptor union a node is.
type Kind string

const (
	KindID       Kind = "id"
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindDate     Kind = "date"
	KindSet      Kind = "set"
	KindRecord   Kind = "record"
	KindOptional Kind = "optional"
)

// SetItemSentinel is the path segment reserved for a Set's item
// descriptor. The diff walker does not append it: it reports changes to
// a Set's item descriptor as Changes.Nested on the set's own path.
const SetItemSentinel = "[]"

// DefaultSpec describes how to compute a default value for an attribute
// that is absent on insert.
type DefaultSpec struct {
	Func string `json:"func"` // "uuid" | "now" | "literal"
	Args any    `json:"args,omitempty"`
}

// Options carries the leaf-level modifiers every descriptor kind shares.
type Options struct {
	Nullable bool         `json:"nullable"`
	Default  *DefaultSpec `json:"default,omitempty"`
	Enum     []any        `json:"enum,omitempty"`
}

// AttributeMap maps attribute names to their descriptors.
type AttributeMap map[string]AttributeDescriptor

// AttributeDescriptor is the discriminated union of attribute shapes.
// Only the fields relevant to Kind are populated; the others are zero.
type AttributeDescriptor struct {
	Kind     Kind                 `json:"kind"`
	Options  Options              `json:"options"`
	Item     *AttributeDescriptor `json:"item,omitempty"`   // Kind == KindSet
	Fields   AttributeMap         `json:"fields,omitempty"` // Kind == KindRecord
	Inner    *AttributeDescriptor `json:"inner,omitempty"`  // Kind == KindOptional
	Optional bool                 `json:"optional,omitempty"`
}

// Id builds an Id descriptor.
func Id(opts ...func(*Options)) AttributeDescriptor {
	return leaf(KindID, opts)
}

// String builds a String descriptor.
func String(opts ...func(*Options)) AttributeDescriptor {
	return leaf(KindString, opts)
}

// Number builds a Number descriptor.
func Number(opts ...func(*Options)) AttributeDescriptor {
	return leaf(KindNumber, opts)
}

// Boolean builds a Boolean descriptor.
func Boolean(opts ...func(*Options)) AttributeDescriptor {
	return leaf(KindBoolean, opts)
}

// Date builds a Date descriptor.
func Date(opts ...func(*Options)) AttributeDescriptor {
	return leaf(KindDate, opts)
}

func leaf(kind Kind, opts []func(*Options)) AttributeDescriptor {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return AttributeDescriptor{Kind: kind, Options: o}
}

// Set builds a Set<item> descriptor.
func Set(item AttributeDescriptor, opts ...func(*Options)) AttributeDescriptor {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return AttributeDescriptor{Kind: KindSet, Options: o, Item: &item}
}

// Record builds a Record<fields> descriptor.
func Record(fields AttributeMap) AttributeDescriptor {
	return AttributeDescriptor{Kind: KindRecord, Fields: fields}
}

// Optional wraps inner, marking the attribute as omittable.
func Optional(inner AttributeDescriptor) AttributeDescriptor {
	return AttributeDescriptor{Kind: KindOptional, Inner: &inner, Optional: true}
}

// WithNullable marks a descriptor's value as allowed to be explicitly null.
func WithNullable() func(*Options) {
	return func(o *Options) { o.Nullable = true }
}

// WithDefault attaches a default-value spec to a descriptor.
func WithDefault(spec DefaultSpec) func(*Options) {
	return func(o *Options) { o.Default = &spec }
}

// WithEnum constrains a descriptor's values to the given set.
func WithEnum(values ...any) func(*Options) {
	return func(o *Options) { o.Enum = values }
}

// Unwrap strips an Optional wrapper, returning the inner descriptor and
// whether d was optional. Non-Optional descriptors return themselves.
func (d AttributeDescriptor) Unwrap() (inner AttributeDescriptor, optional bool) {
	if d.Kind == KindOptional && d.Inner != nil {
		return *d.Inner, true
	}
	return d, false
}

// IsSet reports whether d (after unwrapping Optional) is a Set.
func (d AttributeDescriptor) IsSet() bool {
	inner, _ := d.Unwrap()
	return inner.Kind == KindSet
}

// IsRecord reports whether d (after unwrapping Optional) is a Record.
func (d AttributeDescriptor) IsRecord() bool {
	inner, _ := d.Unwrap()
	return inner.Kind == KindRecord
}

// WriteRule is one opaque write-time predicate, evaluated by the filter
// package against the post-update value of the collection it guards.
// Filter holds the same [path, op, value]-shaped tree the filter
// evaluator interprets, kept as `any` here so schema never imports the
// filter package.
type WriteRule struct {
	Filter any `json:"filter"`
}

// RuleMap is keyed by rule name (e.g. "insert", "update").
type RuleMap map[string]WriteRule

// RoleDef is an opaque role matcher, compared only by deep equality by
// the diff engine. A "secret" key inside Match is treated specially:
// MatchesRole verifies it against a bcrypt hash instead of requiring
// byte-for-byte equality, the one place this model reaches for password
// hashing.
//
// Roles are part of the `_schema` document's shape (declared, diffed,
// persisted) but enforcing them against a caller's identity at
// insert/update/fetch time is out of scope here: HashSecret and
// MatchesRole are the matcher primitive a future authorization layer
// would call, kept and tested on their own so that shape survives
// without a production call site yet.
type RoleDef struct {
	Match map[string]any `json:"match"`
}

// HashSecret bcrypt-hashes a plaintext secret for storage inside a
// RoleDef's Match blob.
func HashSecret(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("schema: failed to hash secret: %w", err)
	}
	return string(hashed), nil
}

// MatchesRole reports whether vars satisfies role's Match blob: every
// key in Match must be present in vars with an equal value, except
// "secret", which is checked with bcrypt against the stored hash. No
// production code path calls this yet; see RoleDef's doc comment.
func MatchesRole(role RoleDef, vars map[string]any) bool {
	for key, want := range role.Match {
		got, ok := vars[key]
		if !ok {
			return false
		}
		if key == "secret" {
			hash, hashOK := want.(string)
			plain, plainOK := got.(string)
			if !hashOK || !plainOK {
				return false
			}
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) != nil {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(want, got) {
			return false
		}
	}
	return true
}

// CollectionDef is one collection's schema plus its rule and permission
// blobs.
type CollectionDef struct {
	Schema      AttributeMap   `json:"schema"`
	Rules       RuleMap        `json:"rules,omitempty"`
	Permissions map[string]any `json:"permissions,omitempty"`
}

// Schema is the whole `_schema` document: a version number, every
// collection's definition, and the opaque top-level roles blob.
type Schema struct {
	Version     int                      `json:"version"`
	Collections map[string]CollectionDef `json:"collections"`
	Roles       map[string]RoleDef       `json:"roles,omitempty"`
}

// New creates an empty schema at version 0.
func New() *Schema {
	return &Schema{Collections: make(map[string]CollectionDef)}
}

// Attribute looks up the descriptor at path within collection, returning
// terrors.UnknownAttribute if no such attribute is declared. path's
// first segment is the attribute name; remaining segments descend into
// Record fields.
func (s *Schema) Attribute(collection string, path triple.Path) (AttributeDescriptor, error) {
	def, ok := s.Collections[collection]
	if !ok {
		return AttributeDescriptor{}, terrors.New(terrors.UnknownAttribute,
			fmt.Sprintf("no such collection %q", collection))
	}
	if len(path) == 0 {
		return AttributeDescriptor{}, terrors.New(terrors.UnknownAttribute, "empty attribute path")
	}
	name, ok := path[0].(string)
	if !ok {
		return AttributeDescriptor{}, terrors.New(terrors.UnknownAttribute, "non-string attribute name")
	}
	desc, ok := def.Schema[name]
	if !ok {
		return AttributeDescriptor{}, UnknownAttributeError(collection, path)
	}
	rest := path[1:]
	for len(rest) > 0 {
		unwrapped, _ := desc.Unwrap()
		switch unwrapped.Kind {
		case KindRecord:
			key, ok := rest[0].(string)
			if !ok {
				return AttributeDescriptor{}, UnknownAttributeError(collection, path)
			}
			next, ok := unwrapped.Fields[key]
			if !ok {
				return AttributeDescriptor{}, UnknownAttributeError(collection, path)
			}
			desc, rest = next, rest[1:]
		case KindSet:
			desc, rest = *unwrapped.Item, rest[1:]
		default:
			return AttributeDescriptor{}, UnknownAttributeError(collection, path)
		}
	}
	return desc, nil
}

// UnknownAttributeError builds the terrors.UnknownAttribute error for a
// path the schema has no descriptor for.
func UnknownAttributeError(collection string, path triple.Path) error {
	return terrors.New(terrors.UnknownAttribute,
		fmt.Sprintf("%s has no attribute at %s", collection, path.String()))
}

// ToDoc serializes the schema to the generic map[string]any shape the
// document codec can explode into triples under the `_schema` entity.
func (s *Schema) ToDoc() map[string]any {
	collections := make(map[string]any, len(s.Collections))
	for name, def := range s.Collections {
		collections[name] = collectionDefToDoc(def)
	}
	doc := map[string]any{
		"version":     float64(s.Version),
		"collections": collections,
	}
	if len(s.Roles) > 0 {
		roles := make(map[string]any, len(s.Roles))
		for name, role := range s.Roles {
			roles[name] = map[string]any{"match": role.Match}
		}
		doc["roles"] = roles
	}
	return doc
}

func collectionDefToDoc(def CollectionDef) map[string]any {
	attrs := make(map[string]any, len(def.Schema))
	for name, desc := range def.Schema {
		attrs[name] = descriptorToDoc(desc)
	}
	out := map[string]any{"schema": attrs}
	if len(def.Rules) > 0 {
		rules := make(map[string]any, len(def.Rules))
		for name, rule := range def.Rules {
			rules[name] = map[string]any{"filter": rule.Filter}
		}
		out["rules"] = rules
	}
	if len(def.Permissions) > 0 {
		out["permissions"] = def.Permissions
	}
	return out
}

func descriptorToDoc(d AttributeDescriptor) map[string]any {
	out := map[string]any{"kind": string(d.Kind)}
	if d.Optional {
		out["optional"] = true
	}
	opts := map[string]any{"nullable": d.Options.Nullable}
	if d.Options.Default != nil {
		opts["default"] = map[string]any{"func": d.Options.Default.Func, "args": d.Options.Default.Args}
	}
	if len(d.Options.Enum) > 0 {
		opts["enum"] = d.Options.Enum
	}
	out["options"] = opts
	switch d.Kind {
	case KindSet:
		if d.Item != nil {
			out["item"] = descriptorToDoc(*d.Item)
		}
	case KindRecord:
		fields := make(map[string]any, len(d.Fields))
		for name, f := range d.Fields {
			fields[name] = descriptorToDoc(f)
		}
		out["fields"] = fields
	case KindOptional:
		if d.Inner != nil {
			out["inner"] = descriptorToDoc(*d.Inner)
		}
	}
	return out
}

// FromDoc reconstructs a Schema from the generic document shape ToDoc
// produces (e.g. after reading it back out of the triple store).
func FromDoc(doc map[string]any) (*Schema, error) {
	s := New()
	if v, ok := doc["version"].(float64); ok {
		s.Version = int(v)
	}
	collectionsDoc, _ := doc["collections"].(map[string]any)
	for name, raw := range collectionsDoc {
		defDoc, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: collection %q is not an object", name)
		}
		def, err := collectionDefFromDoc(defDoc)
		if err != nil {
			return nil, fmt.Errorf("schema: collection %q: %w", name, err)
		}
		s.Collections[name] = def
	}
	if rolesDoc, ok := doc["roles"].(map[string]any); ok {
		s.Roles = make(map[string]RoleDef, len(rolesDoc))
		for name, raw := range rolesDoc {
			roleDoc, _ := raw.(map[string]any)
			match, _ := roleDoc["match"].(map[string]any)
			s.Roles[name] = RoleDef{Match: match}
		}
	}
	return s, nil
}

func collectionDefFromDoc(doc map[string]any) (CollectionDef, error) {
	def := CollectionDef{Schema: make(AttributeMap)}
	attrsDoc, _ := doc["schema"].(map[string]any)
	for name, raw := range attrsDoc {
		descDoc, ok := raw.(map[string]any)
		if !ok {
			return def, fmt.Errorf("attribute %q is not an object", name)
		}
		desc, err := descriptorFromDoc(descDoc)
		if err != nil {
			return def, fmt.Errorf("attribute %q: %w", name, err)
		}
		def.Schema[name] = desc
	}
	if rulesDoc, ok := doc["rules"].(map[string]any); ok {
		def.Rules = make(RuleMap, len(rulesDoc))
		for name, raw := range rulesDoc {
			ruleDoc, _ := raw.(map[string]any)
			def.Rules[name] = WriteRule{Filter: ruleDoc["filter"]}
		}
	}
	if permsDoc, ok := doc["permissions"].(map[string]any); ok {
		def.Permissions = permsDoc
	}
	return def, nil
}

func descriptorFromDoc(doc map[string]any) (AttributeDescriptor, error) {
	kindStr, _ := doc["kind"].(string)
	d := AttributeDescriptor{Kind: Kind(kindStr)}
	if optional, ok := doc["optional"].(bool); ok {
		d.Optional = optional
	}
	if optsDoc, ok := doc["options"].(map[string]any); ok {
		d.Options.Nullable, _ = optsDoc["nullable"].(bool)
		if defDoc, ok := optsDoc["default"].(map[string]any); ok {
			fn, _ := defDoc["func"].(string)
			d.Options.Default = &DefaultSpec{Func: fn, Args: defDoc["args"]}
		}
		if enumRaw, ok := optsDoc["enum"].([]any); ok {
			d.Options.Enum = enumRaw
		}
	}
	switch d.Kind {
	case KindSet:
		itemDoc, ok := doc["item"].(map[string]any)
		if !ok {
			return d, fmt.Errorf("set descriptor missing item")
		}
		item, err := descriptorFromDoc(itemDoc)
		if err != nil {
			return d, err
		}
		d.Item = &item
	case KindRecord:
		fieldsDoc, _ := doc["fields"].(map[string]any)
		d.Fields = make(AttributeMap, len(fieldsDoc))
		for name, raw := range fieldsDoc {
			fieldDoc, ok := raw.(map[string]any)
			if !ok {
				return d, fmt.Errorf("record field %q is not an object", name)
			}
			field, err := descriptorFromDoc(fieldDoc)
			if err != nil {
				return d, fmt.Errorf("record field %q: %w", name, err)
			}
			d.Fields[name] = field
		}
	case KindOptional:
		innerDoc, ok := doc["inner"].(map[string]any)
		if !ok {
			return d, fmt.Errorf("optional descriptor missing inner")
		}
		inner, err := descriptorFromDoc(innerDoc)
		if err != nil {
			return d, err
		}
		d.Inner = &inner
	}
	return d, nil
}

// RulesEqual reports whether two RuleMaps are equal by deep equality,
// used by the diff engine to decide whether a collectionRules record
// should be emitted.
func RulesEqual(a, b RuleMap) bool {
	return reflect.DeepEqual(a, b)
}

// PermissionsEqual reports whether two permission blobs are equal by
// deep equality.
func PermissionsEqual(a, b map[string]any) bool {
	return reflect.DeepEqual(a, b)
}

// RolesEqual reports whether two top-level role maps are equal by deep
// equality.
func RolesEqual(a, b map[string]RoleDef) bool {
	return reflect.DeepEqual(a, b)
}
