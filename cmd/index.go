package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/browser"
	"github.com/brensch/vmrmigrate/internal/indexer"
	"github.com/brensch/vmrmigrate/internal/manifest"
)

// indexCmd pushes normalized metadata back into the records system.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Re-upload normalized metadata for migrated documents",
	Long: `For every manifest entry with metadata, navigates to the document in
the records system and fills its indexing form, translating classifications
and categories to the system's internal codes. Entries without metadata are
skipped. Failures are reported at the end; the run continues past them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		ctx, cancel := signalContext()
		defer cancel()

		entries, err := manifest.Load(cfg.ManifestPath, logger)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("manifest %s has no entries, run the migration first", cfg.ManifestPath)
		}

		session, err := browser.NewSession(cfg, logger)
		if err != nil {
			return fmt.Errorf("launching browser: %w", err)
		}
		defer session.Close()

		ix := indexer.New(session, cfg, logger)
		sum, err := ix.Run(ctx, entries)

		fmt.Printf("Indexing: %d succeeded, %d failed, %d skipped.\n",
			sum.Succeeded, sum.Failed, sum.Skipped)
		if err != nil {
			return fmt.Errorf("indexing finished with errors: %w", err)
		}
		return nil
	},
}
