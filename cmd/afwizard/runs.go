package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ssciwr/afwizard/adapters/sqlite"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recorded filtering runs",
	Long: `Show the most recent filtering runs from the execution journal,
newest first.

The journal is off by default. Enable it in afwizard.yaml:

  journal:
    enabled: true

Examples:
  afwizard runs
  afwizard runs --limit 50`,
	RunE: runRuns,
}

var runsLimit int

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	db, err := openJournal()
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewJournalStore(db)
	runs, err := store.Runs(context.Background(), runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tDATASET\tOUTPUT\tSEGMENTS")
	fmt.Fprintln(w, "-------\t------\t-------\t------\t--------")

	for _, r := range runs {
		started := r.StartedAt.Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", started, r.Status, r.Dataset, r.Output, len(r.Segments))
	}

	w.Flush()
	return nil
}

// openJournal opens the execution journal database configured in the
// config file.
func openJournal() (*sqlite.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, fmt.Errorf("the execution journal is not enabled, set journal.enabled in %s", cfgFile)
	}

	db, err := sqlite.Open(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return db, nil
}
