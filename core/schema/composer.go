/*
Package schema composes the filter configuration schema out of backend
variant schemas and validates configurations against it.

Every backend publishes a JSON document describing its algorithms as a list
of object-schema variants:

	{
	  "anyOf": [
	    {
	      "title": "Simple Morphological Filter",
	      "type": "object",
	      "required": ["type"],
	      "properties": {
	        "type":  { "const": "filters.smrf" },
	        "slope": { "type": "number", "default": 0.15 }
	      }
	    }
	  ]
	}

Compose collects the variants of all enabled backends into one
discriminated union, guaranteeing that every variant carries the _backend
const of its origin. A configuration validates when it validates against at
least one variant; the _backend and type fields discriminate.

Composition is pure and cheap. Callers recompose whenever backend
enablement may have changed instead of caching across calls.
*/
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ssciwr/afwizard/ports"
)

const unionURL = "afwizard-filterstep.json"

// Union is the composed discriminated-union schema over all enabled
// backend variants.
type Union struct {
	variants []Variant
	doc      map[string]any
	compiled *jsonschema.Schema
}

// Variant is one algorithm schema contributed by a backend.
type Variant struct {
	Backend string         // backend identifier (_backend const)
	Type    string         // discriminant const, "" when the variant declares none
	Title   string         // human readable variant title
	Schema  map[string]any // the full variant object schema
}

// Compose builds the union schema from the enabled backends, in backend
// order. Backends with Enabled() == false contribute nothing, so
// configurations referencing them fail validation.
func Compose(backends []ports.Backend) (*Union, error) {
	u := &Union{}
	anyOf := []any{}

	for _, b := range backends {
		if !b.Enabled() {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(b.Schema(), &doc); err != nil {
			return nil, fmt.Errorf("backend %s: parsing schema document: %w", b.Identifier(), err)
		}
		variants, err := extractVariants(doc)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Identifier(), err)
		}
		for _, v := range variants {
			if err := ensureBackendConst(v, b.Identifier()); err != nil {
				return nil, fmt.Errorf("backend %s: %w", b.Identifier(), err)
			}
			u.variants = append(u.variants, Variant{
				Backend: b.Identifier(),
				Type:    constOf(v, "type"),
				Title:   stringOf(v, "title"),
				Schema:  v,
			})
			anyOf = append(anyOf, v)
		}
	}

	if len(anyOf) == 0 {
		// An empty anyOf is not a legal schema; Validate special-cases it.
		return u, nil
	}

	u.doc = map[string]any{"anyOf": anyOf}
	raw, err := json.Marshal(u.doc)
	if err != nil {
		return nil, fmt.Errorf("encoding union schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(unionURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("loading union schema: %w", err)
	}
	u.compiled, err = c.Compile(unionURL)
	if err != nil {
		return nil, fmt.Errorf("compiling union schema: %w", err)
	}
	return u, nil
}

// Validate checks a filter wire object (including _backend and type)
// against the union. A nil return means the configuration is accepted by
// at least one variant; otherwise the returned *Error names the deepest
// offending field.
func (u *Union) Validate(cfg map[string]any) error {
	if u == nil || u.compiled == nil {
		return &Error{Reason: "no enabled backend variants to validate against"}
	}
	normalized, err := normalize(cfg)
	if err != nil {
		return &Error{Reason: fmt.Sprintf("configuration is not JSON encodable: %v", err)}
	}
	if err := u.compiled.Validate(normalized); err != nil {
		return fromValidation(err)
	}
	return nil
}

// Variants returns all composed variants in composition order.
func (u *Union) Variants() []Variant {
	return u.variants
}

// Variant looks up the variant of a backend by its discriminant value.
func (u *Union) Variant(backend, typ string) (Variant, bool) {
	for _, v := range u.variants {
		if v.Backend == backend && v.Type == typ {
			return v, true
		}
	}
	return Variant{}, false
}

// JSON returns the union document, for display and external editors.
func (u *Union) JSON() ([]byte, error) {
	if u.doc == nil {
		return []byte(`{"anyOf": []}`), nil
	}
	return json.MarshalIndent(u.doc, "", "  ")
}

func extractVariants(doc map[string]any) ([]map[string]any, error) {
	raw, ok := doc["anyOf"]
	if !ok {
		// A plain object schema is a single-variant document.
		return []map[string]any{doc}, nil
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("schema anyOf must be a non-empty array")
	}
	variants := make([]map[string]any, 0, len(list))
	for i, item := range list {
		v, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema anyOf[%d] is not an object schema", i)
		}
		variants = append(variants, v)
	}
	return variants, nil
}

// ensureBackendConst makes the variant require _backend with the given
// const. A variant already declaring a different backend is a defect.
func ensureBackendConst(v map[string]any, id string) error {
	props, ok := v["properties"].(map[string]any)
	if !ok {
		props = map[string]any{}
		v["properties"] = props
	}
	if existing, ok := props["_backend"].(map[string]any); ok {
		if c, ok := existing["const"].(string); ok && c != id {
			return fmt.Errorf("variant declares _backend %q", c)
		}
		existing["const"] = id
	} else {
		props["_backend"] = map[string]any{"const": id}
	}

	required, _ := v["required"].([]any)
	for _, r := range required {
		if r == "_backend" {
			return nil
		}
	}
	v["required"] = append(required, "_backend")
	return nil
}

func constOf(v map[string]any, field string) string {
	props, ok := v["properties"].(map[string]any)
	if !ok {
		return ""
	}
	p, ok := props[field].(map[string]any)
	if !ok {
		return ""
	}
	c, _ := p["const"].(string)
	return c
}

func stringOf(v map[string]any, field string) string {
	s, _ := v[field].(string)
	return s
}

// normalize round-trips a value through encoding/json so the validator
// sees plain JSON types regardless of how the map was built.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
