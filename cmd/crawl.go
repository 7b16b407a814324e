package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/browser"
	"github.com/brensch/vmrmigrate/internal/crawler"
	"github.com/brensch/vmrmigrate/internal/ledger"
)

// crawlCmd discovers every document in the records tree.
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Walk the records tree and queue every document for migration",
	Long: `Drives a headless browser through the records system folder by folder
and appends a Pending job to the queue for every document found. Documents
already migrated in a previous run stay done; re-crawling is cheap and safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		ctx, cancel := signalContext()
		defer cancel()

		led, err := ledger.Open(cfg.LedgerPath, logger)
		if err != nil {
			return err
		}
		defer led.Close()

		session, err := browser.NewSession(cfg, logger)
		if err != nil {
			return fmt.Errorf("launching browser: %w", err)
		}
		defer session.Close()

		c, err := crawler.New(session, led, cfg, logger)
		if err != nil {
			return err
		}
		stats, err := c.Run(ctx)
		if err != nil {
			return fmt.Errorf("crawl failed after %d files: %w", stats.FilesDiscovered, err)
		}

		discovered, succeeded, pending := led.Counts()
		fmt.Printf("Crawl complete: %d folders, %d files discovered, %d skipped.\n",
			stats.FoldersVisited, stats.FilesDiscovered, stats.FoldersSkipped)
		fmt.Printf("Queue: %d total, %d done, %d pending.\n", discovered, succeeded, pending)
		return nil
	},
}
