package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/archive"
)

var fixzipsRoot string

// fixzipsCmd repairs ZIP-disguised documents in place.
var fixzipsCmd = &cobra.Command{
	Use:   "fixzips",
	Short: "Repair documents that are still wrapped in ZIP containers",
	Long: `Walks a downloaded tree and replaces every file that is secretly a
ZIP archive with its inner document, keeping the original filename. Detection
goes by file signature, so misnamed wrappers are found too. Metadata sidecars
are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		root := fixzipsRoot
		if root == "" {
			root = cfg.DestRoot
		}
		if root == "" {
			return fmt.Errorf("no tree to fix: set --root or dest_root in config")
		}

		ctx, cancel := signalContext()
		defer cancel()

		res, err := archive.FixTree(ctx, root, cfg.DryRun, logger)
		fmt.Printf("Fixzips: %d scanned, %d repaired, %d sidecars skipped.\n",
			res.Scanned, res.Repaired, res.Skipped)
		if err != nil {
			return fmt.Errorf("fixzips finished with errors: %w", err)
		}
		return nil
	},
}

func init() {
	fixzipsCmd.Flags().StringVar(&fixzipsRoot, "root", "", "Tree to repair (default dest_root from config)")
}
