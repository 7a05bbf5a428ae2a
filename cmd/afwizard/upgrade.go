package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ssciwr/afwizard/app"
	"github.com/ssciwr/afwizard/domain/filter"
)

var upgradeLibraryCmd = &cobra.Command{
	Use:   "upgrade-library <directory>",
	Short: "Rewrite a library's pipeline files at the current data model",
	Long: `Rewrite every pipeline file in a library directory at the current
data model version.

Old files keep working without this, they are upgraded in memory on
every load. Rewriting them once makes the files diffable and editable
in their current shape. The backends referenced by the pipelines do
not have to be installed; the rewrite only touches the document
structure.

Examples:
  afwizard upgrade-library /data/filters`,
	Args: cobra.ExactArgs(1),
	RunE: runUpgradeLibrary,
}

func init() {
	rootCmd.AddCommand(upgradeLibraryCmd)
}

func runUpgradeLibrary(cmd *cobra.Command, args []string) error {
	count, err := app.UpgradeLibrary(args[0], nil, zerolog.Nop())
	if err != nil {
		return err
	}
	fmt.Printf("Rewrote %d pipeline files in %s at data model %d.%d.\n",
		count, args[0], filter.DataModelMajor, filter.DataModelMinor)
	return nil
}
