package segmentation

import (
	"fmt"

	"github.com/ssciwr/afwizard/domain/filter"
)

// PipelineResolver locates a pipeline by its identity hash. Implemented by
// the filter library registry.
type PipelineResolver interface {
	ResolveHash(hash string) (filter.Pipeline, error)
}

// Bind stamps the pipeline's identity hash and title onto every feature
// whose classification property equals class. Re-binding a class simply
// overwrites; no history is kept. Binding a class that matches no feature
// is an error.
func (s *Segmentation) Bind(property, class string, p filter.Pipeline) error {
	hash := p.Identity()
	bound := 0
	for _, f := range s.Collection.Features {
		v, ok := stringProperty(f, property)
		if !ok || v != class {
			continue
		}
		f.Properties[PropertyPipeline] = hash
		f.Properties[PropertyPipelineTitle] = p.Metadata.Title
		bound++
	}
	if bound == 0 {
		return fmt.Errorf("no feature has %s = %q", property, class)
	}
	return nil
}

// Hashes returns the distinct bound pipeline hashes in document order.
// Every feature must be bound; an unbound feature is an error because the
// execution engine has nothing to run on it.
func (s *Segmentation) Hashes() ([]string, error) {
	var hashes []string
	seen := map[string]bool{}
	for i, f := range s.Collection.Features {
		h, ok := stringProperty(f, PropertyPipeline)
		if !ok || h == "" {
			return nil, fmt.Errorf("segmentation feature %d has no bound pipeline", i)
		}
		if !seen[h] {
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

// ResolveAll resolves every bound hash through the resolver. All bindings
// must resolve before any filtering starts; the first failure aborts.
func (s *Segmentation) ResolveAll(r PipelineResolver) (map[string]filter.Pipeline, error) {
	hashes, err := s.Hashes()
	if err != nil {
		return nil, err
	}
	resolved := make(map[string]filter.Pipeline, len(hashes))
	for _, h := range hashes {
		p, err := r.ResolveHash(h)
		if err != nil {
			return nil, fmt.Errorf("resolving pipeline %s: %w", h, err)
		}
		resolved[h] = p
	}
	return resolved, nil
}
