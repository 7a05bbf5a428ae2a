package filter

import (
	"encoding/json"
	"fmt"

	"github.com/ssciwr/afwizard/core/schema"
)

// Envelope keys of the pipeline file format. Everything else inside a
// step object is backend configuration.
const (
	keyBackend     = "_backend"
	keyType        = "type"
	keyVariability = "_variability"
)

// Encode renders the pipeline in its on-disk JSON form, indented for
// hand editing and diffing.
func Encode(p Pipeline) ([]byte, error) {
	steps := make([]any, 0, len(p.Filters))
	for _, f := range p.Filters {
		step := make(map[string]any, len(f.Config)+3)
		for k, v := range f.Config {
			step[k] = v
		}
		step[keyBackend] = f.Backend
		if f.Type != "" {
			step[keyType] = f.Type
		}
		if len(f.Params) > 0 {
			step[keyVariability] = encodeParams(f.Params)
		}
		steps = append(steps, step)
	}

	doc := map[string]any{
		keyBackend: "pipeline",
		"_major":   DataModelMajor,
		"_minor":   DataModelMinor,
		"metadata": p.Metadata,
		"filters":  steps,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a pipeline document, upgrades it to the current data
// model and validates its envelope. With a non-nil union every step's
// wire configuration is additionally validated against the composed
// backend schema; pass nil when enumerating libraries whose backends may
// not be available here.
func Decode(data []byte, u *schema.Union) (Pipeline, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Pipeline{}, fmt.Errorf("parsing pipeline document: %w", err)
	}

	doc, err := upgradeDocument(doc)
	if err != nil {
		return Pipeline{}, err
	}
	if err := schema.ValidateDocument(doc); err != nil {
		return Pipeline{}, err
	}

	var p Pipeline
	if meta, ok := doc["metadata"].(map[string]any); ok {
		p.Metadata = decodeMetadata(meta)
	}

	steps, _ := doc["filters"].([]any)
	for i, s := range steps {
		raw, ok := s.(map[string]any)
		if !ok {
			return Pipeline{}, fmt.Errorf("pipeline step %d is not an object", i+1)
		}
		f, err := decodeStep(raw)
		if err != nil {
			return Pipeline{}, fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		if u != nil {
			if err := u.Validate(f.WireConfig()); err != nil {
				return Pipeline{}, fmt.Errorf("pipeline step %d: %w", i+1, err)
			}
		}
		p.Filters = append(p.Filters, f)
	}
	return p, nil
}

func decodeStep(raw map[string]any) (Filter, error) {
	f := Filter{Config: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case keyBackend:
			f.Backend, _ = v.(string)
		case keyType:
			f.Type, _ = v.(string)
		case keyVariability:
			params, err := decodeParams(v)
			if err != nil {
				return Filter{}, err
			}
			f.Params = params
		default:
			f.Config[k] = v
		}
	}
	if f.Backend == "" {
		return Filter{}, fmt.Errorf("missing _backend")
	}
	return f, nil
}

func encodeParams(params []Parameter) []any {
	out := make([]any, 0, len(params))
	for _, p := range params {
		m := map[string]any{"name": p.Name}
		if p.Description != "" {
			m["description"] = p.Description
		}
		if p.Type != "" {
			m["type"] = p.Type
		}
		if p.Values != "" {
			m["values"] = p.Values
		}
		if p.Target != "" && p.Target != p.Name {
			m["target"] = p.Target
		}
		out = append(out, m)
	}
	return out
}

func decodeParams(v any) ([]Parameter, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("_variability is not an array")
	}
	params := make([]Parameter, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("_variability[%d] is not an object", i)
		}
		p := Parameter{}
		p.Name, _ = m["name"].(string)
		p.Description, _ = m["description"].(string)
		p.Type, _ = m["type"].(string)
		p.Values, _ = m["values"].(string)
		p.Target, _ = m["target"].(string)
		if p.Name == "" {
			return nil, fmt.Errorf("_variability[%d] has no name", i)
		}
		params = append(params, p)
	}
	return params, nil
}

func decodeMetadata(meta map[string]any) Metadata {
	var m Metadata
	m.Title, _ = meta["title"].(string)
	m.Description, _ = meta["description"].(string)
	m.Author, _ = meta["author"].(string)
	m.ExampleDataURL, _ = meta["example_data_url"].(string)
	if kws, ok := meta["keywords"].([]any); ok {
		for _, kw := range kws {
			if s, ok := kw.(string); ok {
				m.Keywords = append(m.Keywords, s)
			}
		}
	}
	return m
}
