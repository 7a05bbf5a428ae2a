package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ssciwr/afwizard/app"
	"github.com/ssciwr/afwizard/bootstrap"
)

var librariesCmd = &cobra.Command{
	Use:   "libraries",
	Short: "List filter libraries and their pipelines",
	Long: `List the registered filter libraries and the pipelines they hold.

Libraries come from the configuration file, the working directory and
the user data directory. The current library, where new pipelines are
saved, is marked with an asterisk.

Examples:
  afwizard libraries
  afwizard libraries --tag forest --tag alpine
  afwizard libraries --backend pdal
  afwizard libraries --title "steep slope"`,
	RunE: runLibraries,
}

var (
	librariesTags    []string
	librariesTitle   string
	librariesBackend string
)

func init() {
	rootCmd.AddCommand(librariesCmd)

	librariesCmd.Flags().StringArrayVar(&librariesTags, "tag", nil, "only pipelines carrying this keyword (repeatable)")
	librariesCmd.Flags().StringVar(&librariesTitle, "title", "", "only pipelines whose title contains this text")
	librariesCmd.Flags().StringVar(&librariesBackend, "backend", "", "only pipelines using this backend")
}

func runLibraries(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	current := a.Libraries.Current()
	fmt.Println("Registered libraries:")
	for _, lib := range a.Libraries.Libraries() {
		marker := " "
		if lib.Path == current.Path {
			marker = "*"
		}
		fmt.Printf("  %s %s (%s)\n", marker, lib.Name, lib.Path)
	}
	fmt.Println()

	entries, err := a.Libraries.List(app.Criteria{
		Tags:          librariesTags,
		TitleContains: librariesTitle,
		Backend:       librariesBackend,
	})
	if err != nil {
		return fmt.Errorf("failed to list pipelines: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No pipelines found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tBACKENDS\tKEYWORDS\tFILE")
	fmt.Fprintln(w, "-----\t--------\t--------\t----")
	for _, e := range entries {
		title := e.Pipeline.Metadata.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			title,
			strings.Join(e.Pipeline.UsedBackends(), ","),
			strings.Join(e.Pipeline.Metadata.Keywords, ","),
			e.Path)
	}
	w.Flush()

	keywords, err := a.Libraries.Keywords()
	if err != nil {
		return fmt.Errorf("failed to collect keywords: %w", err)
	}
	if len(keywords) > 0 {
		fmt.Println()
		fmt.Printf("Keywords in use: %s\n", strings.Join(keywords, ", "))
	}
	return nil
}
