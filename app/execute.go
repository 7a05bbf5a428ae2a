package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/domain/segmentation"
	"github.com/ssciwr/afwizard/ports"
)

// runLogName is the log file written into every output directory.
const runLogName = "output.log"

// classProperty is the conventional segmentation property holding the
// human-readable segment class, recorded in the journal when present.
const classProperty = "class"

// ApplyOptions control one adaptive filtering run.
type ApplyOptions struct {
	OutputDir  string  // default "output"
	Resolution float64 // GeoTiff cell size in dataset units, <= 0 skips rasterization
	Compress   bool    // write LAZ instead of LAS
	Suffix     string  // appended to the dataset stem, default "filtered"

	// Pipelines are made resolvable for this run in addition to the
	// registered libraries, e.g. pipelines built programmatically and
	// never saved. They are staged into the session workspace.
	Pipelines []filter.Pipeline
}

func (o ApplyOptions) withDefaults() ApplyOptions {
	if o.OutputDir == "" {
		o.OutputDir = "output"
	}
	if o.Suffix == "" {
		o.Suffix = "filtered"
	}
	return o
}

// ApplyResult reports what an adaptive filtering run produced.
type ApplyResult struct {
	RunID  string
	Output string // merged point-cloud file
	Raster string // GeoTiff file, empty when rasterization was skipped
	Parts  int    // filtered segment parts, excluding the passthrough remainder
}

// EngineDeps bundles the collaborators of the execution engine.
type EngineDeps struct {
	Backends  ports.BackendSource
	Ops       ports.DatasetOps
	Libraries *LibraryRegistry
	Workspace ports.Workspace
	Journal   ports.Journal // optional, nil disables journaling
	Clock     ports.Clock   // optional, defaults to wall time
	LogSink   io.Writer     // optional, additionally receives the per-run log stream
}

// Engine applies filter pipelines to datasets: single pipelines directly,
// and segmentation-driven adaptive runs that filter each spatial segment
// with the pipeline bound to it.
type Engine struct {
	backends  ports.BackendSource
	ops       ports.DatasetOps
	libraries *LibraryRegistry
	workspace ports.Workspace
	journal   ports.Journal
	clock     ports.Clock
	logSink   io.Writer
	logger    zerolog.Logger
}

// NewEngine creates the execution engine.
func NewEngine(deps EngineDeps, logger zerolog.Logger) *Engine {
	return &Engine{
		backends:  deps.Backends,
		ops:       deps.Ops,
		libraries: deps.Libraries,
		workspace: deps.Workspace,
		journal:   deps.Journal,
		clock:     deps.Clock,
		logSink:   deps.LogSink,
		logger:    logger,
	}
}

// ApplySingle runs one concrete pipeline over the whole dataset.
func (e *Engine) ApplySingle(ctx context.Context, ds dataset.Dataset, p filter.Pipeline) (dataset.Dataset, error) {
	return p.Execute(ctx, e.backends, ds)
}

// Apply runs a segmentation-driven adaptive filtering pass: per bound
// pipeline, the dataset is cropped to the segment geometry and filtered
// with that pipeline; points outside every segment pass through
// unfiltered; the parts are merged into the output file. The first
// failure aborts the run.
func (e *Engine) Apply(ctx context.Context, ds dataset.Dataset, seg *segmentation.Segmentation, opts ApplyOptions) (ApplyResult, error) {
	opts = opts.withDefaults()

	if seg == nil || len(seg.Collection.Features) == 0 {
		return ApplyResult{}, fmt.Errorf("segmentation has no features")
	}
	if seg.SRS == "" {
		return ApplyResult{}, fmt.Errorf("segmentation has no spatial reference, load it with an explicit one")
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return ApplyResult{}, fmt.Errorf("creating output directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(opts.OutputDir, runLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("opening run log: %w", err)
	}
	defer logFile.Close()
	log := e.runLogger(logFile)
	log.Info().Str("dataset", ds.Path).Str("output_dir", opts.OutputDir).Msg("starting adaptive filtering run")

	if err := e.stagePipelines(opts.Pipelines); err != nil {
		return ApplyResult{}, err
	}

	// Resolve every bound pipeline before touching the dataset.
	pipelines, err := seg.ResolveAll(e.libraries)
	if err != nil {
		return ApplyResult{}, err
	}
	merged, err := seg.MergeByProperty(segmentation.PropertyPipeline)
	if err != nil {
		return ApplyResult{}, err
	}

	ext := ".las"
	if opts.Compress {
		ext = ".laz"
	}
	outPath := filepath.Join(opts.OutputDir, ds.Stem()+"_"+opts.Suffix+ext)

	run := ports.Run{
		ID:        uuid.NewString(),
		Dataset:   ds.Path,
		Output:    outPath,
		Status:    ports.RunRunning,
		StartedAt: e.now(),
	}
	parts := merged.Split()
	for _, part := range parts {
		hashes, err := part.Hashes()
		if err != nil {
			return ApplyResult{}, err
		}
		class, _ := part.Property(classProperty)
		run.Segments = append(run.Segments, ports.RunSegment{
			Class:         class,
			PipelineHash:  hashes[0],
			PipelineTitle: pipelines[hashes[0]].Metadata.Title,
		})
	}
	e.recordRun(ctx, run)

	result, err := e.applyParts(ctx, log, ds, seg, parts, pipelines, outPath, opts)
	if err != nil {
		log.Error().Err(err).Msg("adaptive filtering run failed")
		e.finishRun(ctx, run.ID, ports.RunFailed, err.Error())
		return ApplyResult{}, err
	}
	result.RunID = run.ID
	log.Info().Str("output", result.Output).Msg("adaptive filtering run finished")
	e.finishRun(ctx, run.ID, ports.RunSucceeded, "")
	return result, nil
}

// ApplyPipeline runs one concrete pipeline over the whole dataset and
// writes the result into the output directory. It is the unsegmented
// counterpart of Apply and shares its output conventions, including the
// run log, the pipeline copy and the journal record.
func (e *Engine) ApplyPipeline(ctx context.Context, ds dataset.Dataset, p filter.Pipeline, opts ApplyOptions) (ApplyResult, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return ApplyResult{}, fmt.Errorf("creating output directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(opts.OutputDir, runLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("opening run log: %w", err)
	}
	defer logFile.Close()
	log := e.runLogger(logFile)
	log.Info().Str("dataset", ds.Path).Str("pipeline", p.Metadata.Title).Msg("starting filtering run")

	ext := ".las"
	if opts.Compress {
		ext = ".laz"
	}
	outPath := filepath.Join(opts.OutputDir, ds.Stem()+"_"+opts.Suffix+ext)

	run := ports.Run{
		ID:        uuid.NewString(),
		Dataset:   ds.Path,
		Output:    outPath,
		Status:    ports.RunRunning,
		StartedAt: e.now(),
		Segments: []ports.RunSegment{{
			PipelineHash:  p.Identity(),
			PipelineTitle: p.Metadata.Title,
		}},
	}
	e.recordRun(ctx, run)

	result, err := e.applyWhole(ctx, log, ds, p, outPath, opts)
	if err != nil {
		log.Error().Err(err).Msg("filtering run failed")
		e.finishRun(ctx, run.ID, ports.RunFailed, err.Error())
		return ApplyResult{}, err
	}
	result.RunID = run.ID
	log.Info().Str("output", result.Output).Msg("filtering run finished")
	e.finishRun(ctx, run.ID, ports.RunSucceeded, "")
	return result, nil
}

func (e *Engine) applyWhole(
	ctx context.Context,
	log zerolog.Logger,
	ds dataset.Dataset,
	p filter.Pipeline,
	outPath string,
	opts ApplyOptions,
) (ApplyResult, error) {
	if err := e.savePipelineCopy(p, opts.OutputDir); err != nil {
		return ApplyResult{}, err
	}

	log.Info().Str("pipeline", p.Metadata.Title).Str("identity", p.Identity()).Msg("filtering dataset")
	filtered, err := p.Execute(ctx, e.backends, ds)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("filtering dataset: %w", err)
	}

	log.Info().Str("output", outPath).Msg("writing output")
	out, err := e.ops.Merge(ctx, []dataset.Dataset{filtered}, outPath)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("writing output: %w", err)
	}

	result := ApplyResult{Output: out.Path}
	if opts.Resolution > 0 {
		rasterPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".tiff"
		log.Info().Float64("resolution", opts.Resolution).Str("raster", rasterPath).Msg("rasterizing digital terrain model")
		if err := e.ops.Rasterize(ctx, out, rasterPath, opts.Resolution); err != nil {
			return ApplyResult{}, fmt.Errorf("rasterizing output: %w", err)
		}
		result.Raster = rasterPath
	}
	return result, nil
}

func (e *Engine) applyParts(
	ctx context.Context,
	log zerolog.Logger,
	ds dataset.Dataset,
	seg *segmentation.Segmentation,
	parts []*segmentation.Segmentation,
	pipelines map[string]filter.Pipeline,
	outPath string,
	opts ApplyOptions,
) (ApplyResult, error) {
	var pieces []dataset.Dataset
	for i, part := range parts {
		hashes, err := part.Hashes()
		if err != nil {
			return ApplyResult{}, err
		}
		p := pipelines[hashes[0]]
		log.Info().
			Int("segment", i+1).
			Int("segments", len(parts)).
			Str("pipeline", p.Metadata.Title).
			Str("identity", hashes[0]).
			Msg("filtering segment")

		if err := e.savePipelineCopy(p, opts.OutputDir); err != nil {
			return ApplyResult{}, err
		}

		polygons, err := part.PolygonsWKT()
		if err != nil {
			return ApplyResult{}, err
		}
		cropped, err := e.ops.Crop(ctx, ds, polygons, false)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("cropping segment %d: %w", i+1, err)
		}
		filtered, err := p.Execute(ctx, e.backends, cropped)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("filtering segment %d: %w", i+1, err)
		}
		pieces = append(pieces, filtered)
	}

	log.Info().Msg("collecting the unfiltered remainder")
	allPolygons, err := seg.PolygonsWKT()
	if err != nil {
		return ApplyResult{}, err
	}
	remainder, err := e.ops.Crop(ctx, ds, allPolygons, true)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("cropping remainder: %w", err)
	}
	pieces = append(pieces, remainder)

	log.Info().Str("output", outPath).Msg("merging filtered parts")
	mergedDS, err := e.ops.Merge(ctx, pieces, outPath)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("merging parts: %w", err)
	}

	result := ApplyResult{Output: mergedDS.Path, Parts: len(parts)}
	if opts.Resolution > 0 {
		rasterPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".tiff"
		log.Info().Float64("resolution", opts.Resolution).Str("raster", rasterPath).Msg("rasterizing digital terrain model")
		if err := e.ops.Rasterize(ctx, mergedDS, rasterPath, opts.Resolution); err != nil {
			return ApplyResult{}, fmt.Errorf("rasterizing output: %w", err)
		}
		result.Raster = rasterPath
	}
	return result, nil
}

// stagePipelines writes run-provided pipelines into the session workspace
// and registers it as a library, so hash resolution finds them alongside
// everything on disk.
func (e *Engine) stagePipelines(pipelines []filter.Pipeline) error {
	if len(pipelines) == 0 {
		return nil
	}
	var dir string
	for _, p := range pipelines {
		name, err := e.workspace.TempFile(".json")
		if err != nil {
			return err
		}
		data, err := filter.Encode(p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return fmt.Errorf("staging pipeline: %w", err)
		}
		dir = filepath.Dir(name)
	}
	_, err := e.libraries.Add(dir, LibraryOptions{Name: "Run-provided pipelines"})
	return err
}

// savePipelineCopy writes the pipeline definition next to the produced
// data so a run's output directory documents how it was filtered.
func (e *Engine) savePipelineCopy(p filter.Pipeline, dir string) error {
	data, err := filter.Encode(p)
	if err != nil {
		return err
	}
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(p.Metadata.Title)), " ", "_")
	if name == "" {
		name = p.Identity()
	}
	return os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644)
}

// runLogger returns the logger for one run, teeing to the output
// directory's log file and, when configured, the process log sink.
func (e *Engine) runLogger(logFile io.Writer) zerolog.Logger {
	writers := []io.Writer{logFile}
	if e.logSink != nil {
		writers = append(writers, e.logSink)
	}
	return e.logger.Output(zerolog.MultiLevelWriter(writers...))
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock.Now()
	}
	return time.Now()
}

// recordRun journals the start of a run. Journal failures are logged and
// never abort the filtering run.
func (e *Engine) recordRun(ctx context.Context, run ports.Run) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordRun(ctx, run); err != nil {
		e.logger.Warn().Err(err).Str("run", run.ID).Msg("journal write failed")
	}
}

func (e *Engine) finishRun(ctx context.Context, id, status, message string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.FinishRun(ctx, id, status, message, e.now()); err != nil {
		e.logger.Warn().Err(err).Str("run", id).Msg("journal write failed")
	}
}
