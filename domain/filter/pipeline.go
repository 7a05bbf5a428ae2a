package filter

import (
	"context"
	"fmt"

	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/ports"
)

// Metadata describes a pipeline for cataloguing and sharing. All fields
// feed the identity hash.
type Metadata struct {
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Author         string   `json:"author,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	ExampleDataURL string   `json:"example_data_url,omitempty"`
}

// Complete reports whether the descriptive fields a shared pipeline needs
// are filled in.
func (m Metadata) Complete() bool {
	return m.Title != "" && m.Description != "" && len(m.Keywords) > 0
}

// Pipeline is an ordered sequence of filters with metadata (immutable
// value type). Builder methods return new values; Finalized marks the
// explicit transition to a pipeline that is considered done being edited.
type Pipeline struct {
	Filters   []Filter
	Metadata  Metadata
	Finalized bool
}

// Append returns a new draft pipeline with the filter added as last step.
func (p Pipeline) Append(f Filter) Pipeline {
	next := p
	next.Filters = append(append([]Filter(nil), p.Filters...), f)
	next.Finalized = false
	return next
}

// WithFinalizedStep returns a new pipeline with a concrete filter added as
// last step, as produced when a tuning round is committed. Templated
// filters are rejected.
func (p Pipeline) WithFinalizedStep(f Filter) (Pipeline, error) {
	if missing := f.Unresolved(); len(missing) > 0 {
		return Pipeline{}, &UnresolvedParameterError{Backend: f.Backend, Missing: missing}
	}
	next := p
	next.Filters = append(append([]Filter(nil), p.Filters...), f)
	return next, nil
}

// Finalize marks the pipeline as done being edited.
func (p Pipeline) Finalize() Pipeline {
	p.Finalized = true
	return p
}

// Execute folds the dataset through all steps in declaration order,
// feeding each step's output into the next. The first failing step aborts
// the whole run.
func (p Pipeline) Execute(ctx context.Context, src ports.BackendSource, ds dataset.Dataset) (dataset.Dataset, error) {
	out := ds
	var err error
	for i, f := range p.Filters {
		out, err = f.Execute(ctx, src, out)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
	}
	return out, nil
}

// Specialize produces a concrete pipeline from a templated one by fixing
// parameter values. choices holds one choice map per step, aligned with
// Filters; nil entries are allowed for steps without declared parameters.
func (p Pipeline) Specialize(choices []map[string]any) (Pipeline, error) {
	if len(choices) != len(p.Filters) {
		return Pipeline{}, fmt.Errorf("got choices for %d steps, pipeline has %d", len(choices), len(p.Filters))
	}
	next := p
	next.Filters = make([]Filter, len(p.Filters))
	for i, f := range p.Filters {
		if len(f.Params) == 0 {
			next.Filters[i] = f
			continue
		}
		resolved, err := f.Resolve(choices[i])
		if err != nil {
			return Pipeline{}, fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		next.Filters[i] = resolved
	}
	return next, nil
}

// Templated reports whether any step still has unresolved parameters.
func (p Pipeline) Templated() bool {
	for _, f := range p.Filters {
		if f.Templated() {
			return true
		}
	}
	return false
}

// UsedBackends returns the distinct backend identifiers of all steps in
// first-use order.
func (p Pipeline) UsedBackends() []string {
	seen := make(map[string]bool, len(p.Filters))
	var ids []string
	for _, f := range p.Filters {
		if !seen[f.Backend] {
			seen[f.Backend] = true
			ids = append(ids, f.Backend)
		}
	}
	return ids
}
