// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/ssciwr/afwizard/domain/dataset"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Workspace provides session-scoped temporary storage for the dataset
// files produced between pipeline steps. One writer per session; Close
// removes everything the session produced.
type Workspace interface {
	// TempFile reserves a fresh file name with the given extension inside
	// the workspace. Only the name is created, not the file.
	TempFile(ext string) (string, error)

	// Scratch creates a private subdirectory for one tool invocation and
	// returns it together with its cleanup function.
	Scratch() (string, func(), error)

	// Close removes the workspace and all files in it.
	Close() error
}

// -----------------------------------------------------------------------------
// Backend Ports
// -----------------------------------------------------------------------------

// Backend is the contract every filtering toolchain is reached through.
// The core composes schemas and drives execution; everything the backend
// knows about its algorithms lives in the schema document it publishes.
type Backend interface {
	// Identifier returns the stable backend identifier recorded in the
	// _backend field of filter configurations (e.g. "pdal").
	Identifier() string

	// Schema returns the backend's self-describing JSON document. The top
	// level is {"anyOf": [...]} where each variant is an object schema for
	// one algorithm, requiring the "type" discriminant.
	Schema() []byte

	// Enabled reports whether the backend can actually run in this
	// environment (executable found, license present, ...). Disabled
	// backends still register; composition skips them.
	Enabled() bool

	// Execute runs one filter configuration against a dataset and returns
	// the handle of the produced dataset. The input dataset is never
	// modified. cfg is the full wire object including _backend and type.
	Execute(ctx context.Context, ds dataset.Dataset, cfg map[string]any) (dataset.Dataset, error)
}

// BackendSource resolves backend identifiers to live backends. Implemented
// by the backend registry; consumers that only need lookup depend on this.
type BackendSource interface {
	Backend(id string) (Backend, error)
}

// DatasetOps covers the dataset geometry operations the execution engine
// delegates to a backend toolchain: spatial cropping, merging of parts and
// rasterization of results.
type DatasetOps interface {
	// Crop returns the subset of ds inside (or, with outside=true, outside)
	// the union of the given WKT polygons.
	Crop(ctx context.Context, ds dataset.Dataset, polygons []string, outside bool) (dataset.Dataset, error)

	// Merge combines parts into a single dataset written to outPath.
	Merge(ctx context.Context, parts []dataset.Dataset, outPath string) (dataset.Dataset, error)

	// Rasterize writes a GeoTiff digital terrain model of ds to outPath
	// with the given cell resolution in dataset units.
	Rasterize(ctx context.Context, ds dataset.Dataset, outPath string, resolution float64) error
}

// -----------------------------------------------------------------------------
// Journal Ports
// -----------------------------------------------------------------------------

// Run records one execution-engine invocation.
type Run struct {
	ID         string
	Dataset    string
	Output     string
	Status     string // "running", "succeeded", "failed"
	Message    string
	StartedAt  time.Time
	FinishedAt *time.Time // nil while running
	Segments   []RunSegment
}

// RunSegment records which pipeline a segment class was filtered with.
type RunSegment struct {
	Class         string
	PipelineHash  string
	PipelineTitle string
}

// Run status values.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Journal persists execution provenance. Journal failures are reported to
// the caller but must never abort a filtering run.
type Journal interface {
	// RecordRun stores a new run with its segment bindings.
	RecordRun(ctx context.Context, run Run) error

	// FinishRun closes a run with its final status and optional message.
	FinishRun(ctx context.Context, id, status, message string, at time.Time) error

	// Runs returns the most recent runs, newest first.
	Runs(ctx context.Context, limit int) ([]Run, error)
}
