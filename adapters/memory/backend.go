// Package memory provides in-process implementations for testing and dry
// runs. Dataset files are treated as plain text; every operation appends
// a marker line, which makes execution traces assertable.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/ports"
)

// defaultSchema describes the two built-in algorithm variants: a trivial
// classifier without knobs and a thresholded one with a numeric knob.
const defaultSchema = `{
  "anyOf": [
    {
      "type": "object",
      "title": "Trivial ground classification",
      "properties": {
        "type": { "const": "trivial" }
      },
      "required": ["type"]
    },
    {
      "type": "object",
      "title": "Thresholded ground classification",
      "properties": {
        "type": { "const": "threshold" },
        "threshold": { "type": "number" }
      },
      "required": ["type", "threshold"]
    }
  ]
}`

// Call records one backend invocation.
type Call struct {
	Input  string
	Config map[string]any
}

// Backend is a deterministic in-process filtering backend.
type Backend struct {
	mu        sync.Mutex
	id        string
	tag       string
	schema    []byte
	workspace ports.Workspace
	disabled  bool
	failType  string
	calls     []Call
}

// NewBackend creates a memory backend writing produced files into the
// given workspace.
func NewBackend(id string, ws ports.Workspace) *Backend {
	return &Backend{id: id, tag: "ground", schema: []byte(defaultSchema), workspace: ws}
}

// WithSchema replaces the published schema document.
func (b *Backend) WithSchema(schema []byte) *Backend {
	b.schema = schema
	return b
}

// WithTag sets the classification tag appended to filtered files.
func (b *Backend) WithTag(tag string) *Backend {
	b.tag = tag
	return b
}

// FailOn makes executions of the given algorithm type fail.
func (b *Backend) FailOn(typ string) *Backend {
	b.failType = typ
	return b
}

// Disable makes the backend report itself as unavailable.
func (b *Backend) Disable() *Backend {
	b.disabled = true
	return b
}

// Calls returns the recorded invocations in execution order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Identifier returns the backend identifier.
func (b *Backend) Identifier() string { return b.id }

// Schema returns the published schema document.
func (b *Backend) Schema() []byte { return b.schema }

// Enabled reports availability.
func (b *Backend) Enabled() bool { return !b.disabled }

// Execute copies the dataset file and appends a marker line
// "<id>:<type>:<tag>", recording the invocation.
func (b *Backend) Execute(ctx context.Context, ds dataset.Dataset, cfg map[string]any) (dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return dataset.Dataset{}, err
	}

	typ, _ := cfg["type"].(string)
	b.mu.Lock()
	b.calls = append(b.calls, Call{Input: ds.Path, Config: cloneMap(cfg)})
	fail := b.failType != "" && typ == b.failType
	b.mu.Unlock()
	if fail {
		return dataset.Dataset{}, fmt.Errorf("refusing to run %q", typ)
	}

	contents, err := os.ReadFile(ds.Path)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("reading dataset: %w", err)
	}
	out, err := b.workspace.TempFile(filepath.Ext(ds.Path))
	if err != nil {
		return dataset.Dataset{}, err
	}
	line := fmt.Sprintf("%s:%s:%s\n", b.id, typ, b.tag)
	if err := os.WriteFile(out, append(contents, line...), 0o644); err != nil {
		return dataset.Dataset{}, fmt.Errorf("writing dataset: %w", err)
	}
	return dataset.Dataset{Path: out, SRS: ds.SRS}, nil
}

func cloneMap(m map[string]any) map[string]any {
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Ensure interface compliance.
var _ ports.Backend = (*Backend)(nil)
