package triplit

import (
	"time"

	"github.com/google/uuid"

	"github.com/itoxiq/triplit/internal/schema"
)

// withDefaults fills in any attribute missing from doc that has a
// DefaultSpec declared on the collection's schema, per the data model's
// `DefaultSpec = { func, args }`. Attributes with no default are left
// absent, and nothing on the insert path rejects a document that omits
// a non-optional attribute.
func withDefaults(doc map[string]any, attrs schema.AttributeMap) map[string]any {
	if attrs == nil {
		return doc
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for name, desc := range attrs {
		if _, present := out[name]; present {
			continue
		}
		inner, _ := desc.Unwrap()
		if inner.Options.Default == nil {
			continue
		}
		out[name] = computeDefault(*inner.Options.Default)
	}
	return out
}

func computeDefault(spec schema.DefaultSpec) any {
	switch spec.Func {
	case "uuid":
		return uuid.NewString()
	case "now":
		return time.Now().UTC()
	default: // "literal", or an unrecognized func falls back to its args verbatim.
		return spec.Args
	}
}
