package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/manifest"
)

var (
	restructureCSV string
	restructureV2  string
)

// restructureCmd rebuilds the migrated tree around the anchor level.
var restructureCmd = &cobra.Command{
	Use:   "restructure",
	Short: "Flatten a migrated tree around the anchor folder",
	Long: `Reads the migration manifest, drops hierarchy levels up to and
including the anchor (plus any skip-listed levels), and copies every document
into the target root at its flattened path. Also writes the v2 manifest and
the fixed-column indexing CSV for handover.

Use --dry-run to preview the layout without copying.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		if cfg.SourceRoot == "" || cfg.TargetRoot == "" {
			return fmt.Errorf("config: source_root and target_root must be set for restructure")
		}

		ctx, cancel := signalContext()
		defer cancel()

		entries, err := manifest.Load(cfg.ManifestPath, logger)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("manifest %s has no entries, run the migration first", cfg.ManifestPath)
		}

		res, v2, err := manifest.Restructure(ctx, entries, cfg, logger)
		if err != nil {
			return fmt.Errorf("restructure finished with errors: %w", err)
		}

		if !cfg.DryRun {
			v2Path := restructureV2
			if v2Path == "" {
				v2Path = filepath.Join(cfg.TargetRoot, "manifest_v2_restructured.json")
			}
			if err := manifest.WriteV2(v2Path, v2); err != nil {
				return err
			}

			csvPath := restructureCSV
			if csvPath == "" {
				csvPath = filepath.Join(cfg.TargetRoot, "indexing_manifest.csv")
			}
			if err := manifest.ExportIndexingCSV(csvPath, entries); err != nil {
				return err
			}
		}

		fmt.Printf("Restructure: %d copied, %d skipped, %d failed.\n",
			res.Copied, res.Skipped, res.Failed)
		return nil
	},
}

func init() {
	restructureCmd.Flags().StringVar(&restructureCSV, "csv", "", "Path for the indexing CSV (default <target_root>/indexing_manifest.csv)")
	restructureCmd.Flags().StringVar(&restructureV2, "v2-manifest", "", "Path for the v2 manifest (default <target_root>/manifest_v2_restructured.json)")
}
