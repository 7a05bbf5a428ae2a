package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ssciwr/afwizard/bootstrap"
	"github.com/ssciwr/afwizard/core/schema"
	"github.com/ssciwr/afwizard/domain/filter"
)

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline-file>",
	Short: "Validate a pipeline file against the installed backends",
	Long: `Validate a filter pipeline file.

Checks:
  - JSON syntax and the pipeline envelope
  - Data model version is understood (older files are upgraded in memory)
  - Every filter step matches an algorithm schema of an enabled backend

Examples:
  afwizard validate ground.json
  afwizard validate --config /etc/afwizard.yaml ground.json`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	fmt.Printf("Validating %s...\n\n", path)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	var enabled []string
	for _, b := range a.Backends.Enabled() {
		enabled = append(enabled, b.Identifier())
	}
	if len(enabled) == 0 {
		fmt.Printf("  %s Enabled backends: none\n", crossMark)
	} else {
		fmt.Printf("  %s Enabled backends: %s\n", checkMark, strings.Join(enabled, ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("  %s Pipeline file readable\n", crossMark)
		return err
	}
	fmt.Printf("  %s Pipeline file readable\n", checkMark)

	p, err := filter.Decode(data, a.Union)
	if err != nil {
		fmt.Printf("  %s Pipeline valid\n", crossMark)
		var se *schema.Error
		if errors.As(err, &se) && se.Path != "" {
			fmt.Printf("      At %s: %s\n", se.Path, se.Reason)
		} else {
			fmt.Printf("      Error: %v\n", err)
		}
		return fmt.Errorf("pipeline %s is not valid", path)
	}
	fmt.Printf("  %s Pipeline valid\n", checkMark)

	fmt.Printf("  %s Title: %s\n", checkMark, p.Metadata.Title)
	fmt.Printf("  %s Steps: %d\n", checkMark, len(p.Filters))
	fmt.Printf("  %s Backends used: %s\n", checkMark, strings.Join(p.UsedBackends(), ", "))
	fmt.Printf("  %s Identity: %s\n", checkMark, p.Identity())

	fmt.Println()
	fmt.Println("Pipeline is valid.")
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
