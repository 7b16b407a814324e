package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/browser"
	"github.com/brensch/vmrmigrate/internal/ledger"
	"github.com/brensch/vmrmigrate/internal/manifest"
	"github.com/brensch/vmrmigrate/internal/migrate"
)

// runCmd executes the pending migration queue.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pending migration queue",
	Long: `Works through every pending job in the queue: download the document,
unwrap any ZIP container, resolve its destination path, and write it with a
metadata sidecar. Every outcome is journalled, so an interrupted run resumes
where it stopped. The browser session is recycled periodically to keep the
remote system happy.

Use --dry-run to log destinations without downloading or writing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		if cfg.DestRoot == "" {
			return fmt.Errorf("config: dest_root must be set for run")
		}

		ctx, cancel := signalContext()
		defer cancel()

		led, err := ledger.Open(cfg.LedgerPath, logger)
		if err != nil {
			return err
		}
		defer led.Close()

		man, err := manifest.NewWriter(cfg.ManifestPath)
		if err != nil {
			return err
		}
		defer man.Close()

		session, err := browser.NewSession(cfg, logger)
		if err != nil {
			return fmt.Errorf("launching browser: %w", err)
		}
		defer session.Close()

		runner := migrate.NewRunner(session, led, man, cfg, logger)
		sum, err := runner.Run(ctx)

		fmt.Printf("Migration run: %d attempted, %d succeeded, %d failed.\n",
			sum.Attempted, sum.Succeeded, sum.Failed)
		if err != nil {
			return fmt.Errorf("run finished with errors: %w", err)
		}
		return nil
	},
}
