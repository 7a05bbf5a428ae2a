package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ssciwr/afwizard/config"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "afwizard",
	Short: "Adaptive ground-point filtering for airborne Lidar datasets",
	Long: `AFwizard separates airborne Lidar point clouds into ground and
non-ground points. Filtering runs through locally installed tools
(PDAL, LAStools, OPALS) with pipelines taken from shareable filter
libraries, and a GeoJSON segmentation can vary the pipeline per
spatial segment of the dataset.

Quick start:
  afwizard apply --dataset site.las --segmentation site.geojson
  afwizard apply --dataset site.las --pipeline ground.json

Management:
  afwizard libraries        # List filter libraries and their pipelines
  afwizard validate         # Validate a pipeline file
  afwizard upgrade-library  # Rewrite a library at the current data model
  afwizard runs             # Show recorded filtering runs`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "afwizard.yaml", "config file path")
}

// loadConfig reads the configured file, falling back to AFWIZARD_*
// environment variables when the file does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
