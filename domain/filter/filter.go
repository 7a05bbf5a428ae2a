// Package filter provides the filter and pipeline value types, their
// serialization and the identity model. Filters are data: a backend
// identifier, an algorithm discriminant and a configuration validated
// against the composed backend schema. Everything that actually touches
// point clouds happens behind the backend contract.
package filter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ssciwr/afwizard/core/schema"
	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/sweep"
	"github.com/ssciwr/afwizard/ports"
)

// Parameter declares an end-user-tunable knob of a filter. Declarations
// persist with the filter; concrete values live in the configuration and
// are deliberately outside the identity hash.
type Parameter struct {
	Name        string // display name, also the key in resolution choices
	Description string
	Type        string // "string", "integer" or "number"
	Values      string // candidate specification in sweep notation
	Target      string // configuration key the value lands in, Name if empty
}

// TargetKey returns the configuration key this parameter writes to.
func (p Parameter) TargetKey() string {
	if p.Target != "" {
		return p.Target
	}
	return p.Name
}

// Kind maps the declared type onto a sweep domain, defaulting to number.
func (p Parameter) Kind() sweep.Kind {
	switch p.Type {
	case "string":
		return sweep.String
	case "integer":
		return sweep.Integer
	default:
		return sweep.Number
	}
}

// Candidates expands the declared value specification.
func (p Parameter) Candidates() ([]any, error) {
	if p.Values == "" {
		return nil, nil
	}
	return sweep.Expand(p.Values, p.Kind())
}

// Filter is one ground-point filtering step (immutable value type).
type Filter struct {
	Backend string         // backend identifier, the _backend wire field
	Type    string         // algorithm discriminant, the type wire field
	Config  map[string]any // backend configuration without the wire envelope
	Params  []Parameter    // end-user-tunable parameter declarations
}

// New constructs a filter and validates its configuration against the
// composed schema. Declared parameters whose target key is absent from the
// configuration are substituted with their first candidate value for the
// validation, so templated filters construct fine as long as a concrete
// choice would validate.
func New(u *schema.Union, backend, typ string, cfg map[string]any, params []Parameter) (Filter, error) {
	f := Filter{Backend: backend, Type: typ, Config: cloneConfig(cfg), Params: append([]Parameter(nil), params...)}

	probe := f.WireConfig()
	for _, p := range f.Params {
		if _, ok := probe[p.TargetKey()]; ok {
			continue
		}
		candidates, err := p.Candidates()
		if err != nil {
			return Filter{}, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if len(candidates) > 0 {
			probe[p.TargetKey()] = candidates[0]
		}
	}
	if err := u.Validate(probe); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// WireConfig returns the full wire object handed to backends: the
// configuration plus the _backend and type envelope.
func (f Filter) WireConfig() map[string]any {
	wire := make(map[string]any, len(f.Config)+2)
	for k, v := range f.Config {
		wire[k] = v
	}
	wire["_backend"] = f.Backend
	if f.Type != "" {
		wire["type"] = f.Type
	}
	return wire
}

// Unresolved lists the declared parameters that have no concrete value in
// the configuration yet, in declaration order.
func (f Filter) Unresolved() []string {
	var missing []string
	for _, p := range f.Params {
		if _, ok := f.Config[p.TargetKey()]; !ok {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// Templated reports whether the filter still has unresolved parameters and
// therefore cannot execute.
func (f Filter) Templated() bool {
	return len(f.Unresolved()) > 0
}

// Resolve bakes a choice for every declared parameter into the
// configuration and returns the concrete filter. The declarations stay, so
// identity is unaffected and the result remains re-tunable.
func (f Filter) Resolve(choices map[string]any) (Filter, error) {
	var missing []string
	for _, p := range f.Params {
		if _, ok := choices[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return Filter{}, &UnresolvedParameterError{Backend: f.Backend, Missing: missing}
	}

	resolved := f
	resolved.Config = cloneConfig(f.Config)
	for _, p := range f.Params {
		resolved.Config[p.TargetKey()] = choices[p.Name]
	}
	return resolved, nil
}

// Execute runs the filter against a dataset through its backend. Templated
// filters refuse to execute; resolve them first.
func (f Filter) Execute(ctx context.Context, src ports.BackendSource, ds dataset.Dataset) (dataset.Dataset, error) {
	if missing := f.Unresolved(); len(missing) > 0 {
		return dataset.Dataset{}, &UnresolvedParameterError{Backend: f.Backend, Missing: missing}
	}
	b, err := src.Backend(f.Backend)
	if err != nil {
		return dataset.Dataset{}, err
	}
	out, err := b.Execute(ctx, ds, f.WireConfig())
	if err != nil {
		if _, ok := err.(*BackendError); ok {
			return dataset.Dataset{}, err
		}
		return dataset.Dataset{}, &BackendError{Backend: f.Backend, Err: err}
	}
	return out, nil
}

func cloneConfig(cfg map[string]any) map[string]any {
	clone := make(map[string]any, len(cfg))
	for k, v := range cfg {
		clone[k] = v
	}
	return clone
}

// UnresolvedParameterError reports use of a templated filter where a
// concrete one is required. This is a usage error, not a data error.
type UnresolvedParameterError struct {
	Backend string
	Missing []string
}

func (e *UnresolvedParameterError) Error() string {
	return fmt.Sprintf("filter (%s) has unresolved end-user parameters: %s",
		e.Backend, strings.Join(e.Missing, ", "))
}

// BackendError wraps a backend execution failure together with the
// diagnostic output of the toolchain.
type BackendError struct {
	Backend string
	Output  string // captured stdout/stderr of the tool, may be empty
	Err     error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend %s execution failed: %v", e.Backend, e.Err)
	if e.Output != "" {
		msg += "\n" + strings.TrimSpace(e.Output)
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// sortedParamNames returns the declared parameter names in canonical order
// for the identity hash.
func sortedParamNames(params []Parameter) []string {
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
