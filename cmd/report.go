package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/report"
)

var reportArchiveDir string

// reportCmd builds the audit summary over the journal and manifest.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise the migration and optionally archive audit tables",
	Long: `Loads the queue journal and manifest into DuckDB, prints job counts
by status and documents by top-level folder, and with --archive-dir copies
the audit tables out as Parquet for long-term retention.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		ctx, cancel := signalContext()
		defer cancel()

		rep, err := report.Run(ctx, cfg, reportArchiveDir, logger)
		if err != nil {
			return fmt.Errorf("building report: %w", err)
		}
		report.Print(rep)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportArchiveDir, "archive-dir", "", "Directory to archive audit tables as Parquet (skipped when empty)")
}
