package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssciwr/afwizard/app"
	"github.com/ssciwr/afwizard/bootstrap"
	"github.com/ssciwr/afwizard/config"
	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/domain/segmentation"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Filter a point cloud with a pipeline or a segmentation",
	Long: `Apply ground-point filtering to a Lidar dataset.

Exactly one of --segmentation and --pipeline selects the mode:
  --segmentation runs an adaptive pass, filtering each spatial segment
  with the pipeline assigned to it and passing unsegmented points
  through unfiltered.
  --pipeline runs a single pipeline file over the whole dataset.

Pipelines referenced by a segmentation are resolved from the configured
filter libraries plus any --library directories.

Examples:
  afwizard apply --dataset site.las --segmentation site.geojson
  afwizard apply --dataset site.las --pipeline ground.json --compress
  afwizard apply --dataset site.las --dataset-crs EPSG:25832 \
      --segmentation site.geojson --library /data/filters --resolution 2.0`,
	RunE: runApply,
}

var (
	applyDataset         string
	applyDatasetCRS      string
	applySegmentation    string
	applySegmentationCRS string
	applyPipeline        string
	applyLibraries       []string
	applyOutputDir       string
	applyResolution      float64
	applyCompress        bool
	applySuffix          string
	applyPDALExec        string
	applyLASToolsDir     string
	applyOPALSDir        string
)

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringVar(&applyDataset, "dataset", "", "point cloud file to filter, .las or .laz (required)")
	applyCmd.Flags().StringVar(&applyDatasetCRS, "dataset-crs", "", "spatial reference of the dataset, e.g. EPSG:25832")
	applyCmd.Flags().StringVar(&applySegmentation, "segmentation", "", "GeoJSON segmentation with pipeline assignments")
	applyCmd.Flags().StringVar(&applySegmentationCRS, "segmentation-crs", "", "spatial reference of the segmentation")
	applyCmd.Flags().StringVar(&applyPipeline, "pipeline", "", "pipeline file applied to the whole dataset")
	applyCmd.Flags().StringArrayVar(&applyLibraries, "library", nil, "additional filter library directory (repeatable)")
	applyCmd.Flags().StringVar(&applyOutputDir, "output-dir", "output", "directory for produced files")
	applyCmd.Flags().Float64Var(&applyResolution, "resolution", 0.5, "terrain model raster resolution in dataset units")
	applyCmd.Flags().BoolVar(&applyCompress, "compress", false, "write LAZ instead of LAS output")
	applyCmd.Flags().StringVar(&applySuffix, "suffix", "filtered", "suffix appended to output filenames")
	applyCmd.Flags().StringVar(&applyPDALExec, "pdal-exec", "", "pdal executable")
	applyCmd.Flags().StringVar(&applyLASToolsDir, "lastools-dir", "", "LAStools installation directory")
	applyCmd.Flags().StringVar(&applyOPALSDir, "opals-dir", "", "OPALS installation directory")
	applyCmd.MarkFlagRequired("dataset")
}

func runApply(cmd *cobra.Command, args []string) error {
	if (applySegmentation == "") == (applyPipeline == "") {
		return fmt.Errorf("exactly one of --segmentation and --pipeline must be given")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	for _, dir := range applyLibraries {
		if _, err := a.Libraries.Add(dir, app.LibraryOptions{}); err != nil {
			return fmt.Errorf("adding library %s: %w", dir, err)
		}
	}

	ds, err := dataset.New(applyDataset, applyDatasetCRS)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.ApplyOptions{
		OutputDir:  cfg.Execution.OutputDir,
		Resolution: cfg.Execution.Resolution,
		Compress:   cfg.Execution.Compress,
		Suffix:     cfg.Execution.Suffix,
	}

	var result app.ApplyResult
	if applyPipeline != "" {
		data, err := os.ReadFile(applyPipeline)
		if err != nil {
			return fmt.Errorf("reading pipeline: %w", err)
		}
		p, err := filter.Decode(data, a.Union)
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", applyPipeline, err)
		}
		result, err = a.Engine.ApplyPipeline(ctx, ds, p, opts)
		if err != nil {
			return err
		}
	} else {
		seg, err := segmentation.Load(applySegmentation, applySegmentationCRS)
		if err != nil {
			return err
		}
		result, err = a.Engine.Apply(ctx, ds, seg, opts)
		if err != nil {
			return err
		}
	}

	fmt.Println("Filtering finished.")
	fmt.Printf("  output:  %s\n", result.Output)
	if result.Raster != "" {
		fmt.Printf("  raster:  %s\n", result.Raster)
	}
	if result.Parts > 0 {
		fmt.Printf("  segments: %d\n", result.Parts)
	}
	return nil
}

// applyFlagOverrides copies set command line flags over the loaded
// configuration; flags win over the file and the environment.
func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Execution.OutputDir = applyOutputDir
	}
	if flags.Changed("resolution") {
		cfg.Execution.Resolution = applyResolution
	}
	if flags.Changed("compress") {
		cfg.Execution.Compress = applyCompress
	}
	if flags.Changed("suffix") {
		cfg.Execution.Suffix = applySuffix
	}
	if flags.Changed("pdal-exec") {
		cfg.Backends.PDAL.Executable = applyPDALExec
	}
	if flags.Changed("lastools-dir") {
		cfg.Backends.LASTools.Dir = applyLASToolsDir
	}
	if flags.Changed("opals-dir") {
		cfg.Backends.OPALS.Dir = applyOPALSDir
	}
}
