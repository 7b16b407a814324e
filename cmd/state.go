package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/ledger"
)

var stateJobID string

// stateCmd displays the replayed queue state and record history.
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the migration queue state",
	Long: `Replays the journal and prints the queue totals. With --job, prints
the full record history for one job instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		if stateJobID != "" {
			records, err := ledger.ReadAll(cfg.LedgerPath)
			if err != nil {
				return err
			}
			fmt.Printf("History for %s:\n", stateJobID)
			fmt.Printf("%-25s | %-8s | %s\n", "Timestamp", "Status", "Detail")
			fmt.Println(strings.Repeat("-", 70))
			found := 0
			for _, rec := range records {
				if rec.ID != stateJobID {
					continue
				}
				found++
				fmt.Printf("%-25s | %-8s | %s\n", rec.Timestamp, rec.Status, rec.Reason)
			}
			if found == 0 {
				fmt.Println("(no records)")
			}
			return nil
		}

		led, err := ledger.Open(cfg.LedgerPath, logger)
		if err != nil {
			return err
		}
		defer led.Close()

		discovered, succeeded, pending := led.Counts()
		fmt.Printf("Queue %s:\n", cfg.LedgerPath)
		fmt.Printf("  discovered: %d\n", discovered)
		fmt.Printf("  succeeded:  %d\n", succeeded)
		fmt.Printf("  pending:    %d\n", pending)

		if pending > 0 {
			fmt.Println("\nNext pending jobs:")
			for i, job := range led.PendingJobs() {
				if i == 10 {
					fmt.Printf("  ... and %d more\n", pending-10)
					break
				}
				fmt.Printf("  %s/%s\n", strings.Join(job.Hierarchy, "/"), job.Filename)
			}
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().StringVar(&stateJobID, "job", "", "Show full record history for one job id")
}
