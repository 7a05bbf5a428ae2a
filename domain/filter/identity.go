package filter

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

// Identity returns the content hash that pipelines are located by in
// libraries and referenced by from segmentations. It covers the metadata
// and the structural skeleton of the steps: backend, discriminant and the
// declared parameter names. Concrete configuration values are deliberately
// excluded, so re-tuning end-user parameters never changes a pipeline's
// identity, while any structural or metadata change does.
//
// The canonical serialization is JSON over maps (keys sorted by
// encoding/json) with parameter names sorted; the hash is the SHA-1 hex
// digest of those bytes. Hash values are local to this data model, not a
// wire format.
func (p Pipeline) Identity() string {
	keywords := p.Metadata.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	steps := make([]any, 0, len(p.Filters))
	for _, f := range p.Filters {
		steps = append(steps, map[string]any{
			"backend":    f.Backend,
			"type":       f.Type,
			"parameters": sortedParamNames(f.Params),
		})
	}

	canonical := map[string]any{
		"metadata": map[string]any{
			"title":            p.Metadata.Title,
			"description":      p.Metadata.Description,
			"author":           p.Metadata.Author,
			"keywords":         keywords,
			"example_data_url": p.Metadata.ExampleDataURL,
		},
		"steps": steps,
	}

	raw, err := json.Marshal(canonical)
	if err != nil {
		// The canonical form only contains strings and string slices.
		panic("filter: canonical identity form not encodable: " + err.Error())
	}
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}
