package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Error reports a schema violation with the instance path of the offending
// field. An empty Path means the document as a whole was rejected.
type Error struct {
	Path   string // dotted instance path, e.g. "filters.0.slope"
	Reason string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "schema violation: " + e.Reason
	}
	return fmt.Sprintf("schema violation at %s: %s", e.Path, e.Reason)
}

// fromValidation flattens the validator's cause tree to the most specific
// failing field. For anyOf unions the root error only says that no variant
// matched; the deepest instance location inside the best-matching variant
// is what the user needs to see.
func fromValidation(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &Error{Reason: err.Error()}
	}
	leaf := deepestCause(ve)
	return &Error{
		Path:   pointerToPath(leaf.InstanceLocation),
		Reason: leaf.Message,
	}
}

func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	best := ve
	var walk func(v *jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.InstanceLocation) > len(best.InstanceLocation) {
			best = v
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	return best
}

// pointerToPath renders a JSON pointer as a dotted path:
// "/filters/0/slope" becomes "filters.0.slope".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}
