// Package pdal drives the PDAL toolchain as a filtering backend and as
// the provider of the dataset geometry operations. Every invocation
// writes a PDAL pipeline document into a scratch directory and runs
// `pdal pipeline` on it.
package pdal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/ports"
)

// Identifier is the backend identifier recorded in filter configurations.
const Identifier = "pdal"

//go:embed schema.json
var schemaJSON []byte

// runner holds what every PDAL invocation needs.
type runner struct {
	executable string
	workspace  ports.Workspace
	logger     zerolog.Logger
}

// Backend implements ports.Backend on top of the pdal executable.
type Backend struct {
	runner
}

// NewBackend creates the PDAL backend. executable may be empty, then
// "pdal" is looked up on the PATH.
func NewBackend(executable string, ws ports.Workspace, logger zerolog.Logger) *Backend {
	if executable == "" {
		executable = "pdal"
	}
	return &Backend{runner{executable: executable, workspace: ws, logger: logger}}
}

// Identifier returns "pdal".
func (b *Backend) Identifier() string { return Identifier }

// Schema returns the embedded algorithm variant schema.
func (b *Backend) Schema() []byte { return schemaJSON }

// Enabled reports whether the pdal executable can be found.
func (b *Backend) Enabled() bool {
	_, err := exec.LookPath(b.executable)
	return err == nil
}

// Execute runs one filter stage between a las reader and a las writer.
func (b *Backend) Execute(ctx context.Context, ds dataset.Dataset, cfg map[string]any) (dataset.Dataset, error) {
	stage := filterStage(cfg)
	if stage["type"] == nil {
		return dataset.Dataset{}, fmt.Errorf("filter configuration lacks a type")
	}

	out, err := b.workspace.TempFile(extensionOf(ds))
	if err != nil {
		return dataset.Dataset{}, err
	}
	stages := []map[string]any{readerStage(ds), stage, writerStage(out, ds.SRS)}
	if err := b.runPipeline(ctx, stages); err != nil {
		return dataset.Dataset{}, err
	}
	return dataset.Dataset{Path: out, SRS: ds.SRS}, nil
}

// DatasetOps implements ports.DatasetOps on top of the pdal executable.
type DatasetOps struct {
	runner
}

// NewDatasetOps creates the PDAL dataset operations.
func NewDatasetOps(executable string, ws ports.Workspace, logger zerolog.Logger) *DatasetOps {
	if executable == "" {
		executable = "pdal"
	}
	return &DatasetOps{runner{executable: executable, workspace: ws, logger: logger}}
}

// Crop keeps the points inside (or, with outside=true, outside) the
// union of the given WKT polygons.
func (o *DatasetOps) Crop(ctx context.Context, ds dataset.Dataset, polygons []string, outside bool) (dataset.Dataset, error) {
	out, err := o.workspace.TempFile(extensionOf(ds))
	if err != nil {
		return dataset.Dataset{}, err
	}
	stages := []map[string]any{readerStage(ds), cropStage(polygons, outside), writerStage(out, ds.SRS)}
	if err := o.runPipeline(ctx, stages); err != nil {
		return dataset.Dataset{}, err
	}
	return dataset.Dataset{Path: out, SRS: ds.SRS}, nil
}

// Merge combines parts into outPath with `pdal merge`.
func (o *DatasetOps) Merge(ctx context.Context, parts []dataset.Dataset, outPath string) (dataset.Dataset, error) {
	if len(parts) == 0 {
		return dataset.Dataset{}, fmt.Errorf("nothing to merge")
	}

	args := []string{"merge"}
	for _, part := range parts {
		args = append(args, part.Path)
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, o.executable, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return dataset.Dataset{}, &filter.BackendError{Backend: Identifier, Output: string(output), Err: err}
	}
	return dataset.Dataset{Path: outPath, SRS: parts[0].SRS}, nil
}

// Rasterize writes a GeoTiff digital terrain model of ds.
func (o *DatasetOps) Rasterize(ctx context.Context, ds dataset.Dataset, outPath string, resolution float64) error {
	stages := []map[string]any{readerStage(ds), rasterStage(outPath, resolution)}
	return o.runPipeline(ctx, stages)
}

// runPipeline writes the stages as a PDAL pipeline document into a
// scratch directory and executes it.
func (r *runner) runPipeline(ctx context.Context, stages []map[string]any) error {
	doc, err := json.MarshalIndent(stages, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pipeline: %w", err)
	}

	scratch, cleanup, err := r.workspace.Scratch()
	if err != nil {
		return err
	}
	defer cleanup()

	pipelineFile := filepath.Join(scratch, "pipeline.json")
	if err := os.WriteFile(pipelineFile, doc, 0o644); err != nil {
		return fmt.Errorf("writing pipeline: %w", err)
	}

	r.logger.Debug().RawJSON("pipeline", doc).Msg("executing pdal pipeline")
	cmd := exec.CommandContext(ctx, r.executable, "pipeline", pipelineFile)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &filter.BackendError{Backend: Identifier, Output: string(output), Err: err}
	}
	return nil
}

// filterStage strips the composition envelope from a wire configuration.
func filterStage(cfg map[string]any) map[string]any {
	stage := make(map[string]any, len(cfg))
	for k, v := range cfg {
		if k == "_backend" {
			continue
		}
		stage[k] = v
	}
	return stage
}

// readerStage builds the las reader, overriding the file's spatial
// reference when the dataset carries an explicit one.
func readerStage(ds dataset.Dataset) map[string]any {
	stage := map[string]any{"type": "readers.las", "filename": ds.Path}
	if ds.SRS != "" {
		stage["override_srs"] = ds.SRS
		stage["nosrs"] = true
	}
	return stage
}

// writerStage builds the las writer, compressing by file extension.
func writerStage(path, srs string) map[string]any {
	compression := "none"
	if strings.EqualFold(filepath.Ext(path), ".laz") {
		compression = "laszip"
	}
	stage := map[string]any{"type": "writers.las", "filename": path, "compression": compression}
	if srs != "" {
		stage["a_srs"] = srs
	}
	return stage
}

func cropStage(polygons []string, outside bool) map[string]any {
	return map[string]any{
		"type":    "filters.crop",
		"polygon": polygons,
		"outside": outside,
	}
}

func rasterStage(path string, resolution float64) map[string]any {
	return map[string]any{
		"type":        "writers.gdal",
		"filename":    path,
		"gdaldriver":  "GTiff",
		"output_type": "all",
		"resolution":  resolution,
	}
}

func extensionOf(ds dataset.Dataset) string {
	if ext := filepath.Ext(ds.Path); ext != "" {
		return ext
	}
	return ".las"
}

// Ensure interface compliance.
var (
	_ ports.Backend    = (*Backend)(nil)
	_ ports.DatasetOps = (*DatasetOps)(nil)
)
