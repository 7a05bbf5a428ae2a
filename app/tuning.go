package app

import (
	"fmt"

	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/domain/sweep"
)

// Variants expands a templated pipeline into the full set of concrete
// pipelines a tuning round compares: the cartesian product over every
// declared parameter's candidate values, across all steps. Steps without
// declared parameters contribute exactly one option. A single filter with
// slope "0.1:0.3:0.1" therefore yields three variants.
func Variants(p filter.Pipeline) ([]filter.Pipeline, error) {
	stepOptions := make([][]any, len(p.Filters))
	for i, f := range p.Filters {
		options, err := stepChoices(f)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		stepOptions[i] = options
	}

	variants := make([]filter.Pipeline, 0, countCombinations(stepOptions))
	for _, combo := range sweep.Combinations(stepOptions) {
		choices := make([]map[string]any, len(combo))
		for i, c := range combo {
			choices[i], _ = c.(map[string]any)
		}
		variant, err := p.Specialize(choices)
		if err != nil {
			return nil, err
		}
		variants = append(variants, variant)
	}
	return variants, nil
}

// Commit ends a tuning round with the chosen variant, marking it final.
// The other expansion artifacts are simply dropped by the caller.
func Commit(variant filter.Pipeline) (filter.Pipeline, error) {
	if variant.Templated() {
		return filter.Pipeline{}, fmt.Errorf("cannot commit a variant with unresolved parameters")
	}
	return variant.Finalize(), nil
}

// stepChoices expands one step's parameters into the list of choice maps
// for that step. Parameter-less steps yield a single nil choice.
func stepChoices(f filter.Filter) ([]any, error) {
	if len(f.Params) == 0 {
		return []any{map[string]any(nil)}, nil
	}

	names := make([]string, len(f.Params))
	sets := make([][]any, len(f.Params))
	for i, param := range f.Params {
		candidates, err := param.Candidates()
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", param.Name, err)
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("parameter %q declares no candidate values", param.Name)
		}
		names[i] = param.Name
		sets[i] = candidates
	}

	var options []any
	for _, combo := range sweep.Combinations(sets) {
		choice := make(map[string]any, len(names))
		for i, v := range combo {
			choice[names[i]] = v
		}
		options = append(options, choice)
	}
	return options, nil
}

func countCombinations(sets [][]any) int {
	n := 1
	for _, s := range sets {
		n *= len(s)
	}
	return n
}
