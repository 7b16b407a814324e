package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/app"
	"github.com/brensch/vmrmigrate/internal/archive"
	"github.com/brensch/vmrmigrate/internal/browser"
	"github.com/brensch/vmrmigrate/internal/crawler"
	"github.com/brensch/vmrmigrate/internal/ledger"
	"github.com/brensch/vmrmigrate/internal/manifest"
	"github.com/brensch/vmrmigrate/internal/migrate"
)

// tuiCmd runs the interactive dashboard.
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive dashboard over crawl, migrate, and fixzips",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		tasks := app.Tasks{
			Crawl: func(ctx context.Context) (string, error) {
				led, err := ledger.Open(cfg.LedgerPath, logger)
				if err != nil {
					return "", err
				}
				defer led.Close()

				session, err := browser.NewSession(cfg, logger)
				if err != nil {
					return "", fmt.Errorf("launching browser: %w", err)
				}
				defer session.Close()

				c, err := crawler.New(session, led, cfg, logger)
				if err != nil {
					return "", err
				}
				stats, err := c.Run(ctx)
				return fmt.Sprintf("%d folders, %d files discovered",
					stats.FoldersVisited, stats.FilesDiscovered), err
			},
			Migrate: func(ctx context.Context, progress chan<- migrate.Progress) (string, error) {
				led, err := ledger.Open(cfg.LedgerPath, logger)
				if err != nil {
					return "", err
				}
				defer led.Close()

				man, err := manifest.NewWriter(cfg.ManifestPath)
				if err != nil {
					return "", err
				}
				defer man.Close()

				session, err := browser.NewSession(cfg, logger)
				if err != nil {
					return "", fmt.Errorf("launching browser: %w", err)
				}
				defer session.Close()

				runner := migrate.NewRunner(session, led, man, cfg, logger)
				runner.Progress = progress
				sum, err := runner.Run(ctx)
				return fmt.Sprintf("%d succeeded, %d failed", sum.Succeeded, sum.Failed), err
			},
			FixZips: func(ctx context.Context) (string, error) {
				if cfg.DestRoot == "" {
					return "", fmt.Errorf("dest_root not set in config")
				}
				res, err := archive.FixTree(ctx, cfg.DestRoot, cfg.DryRun, logger)
				return fmt.Sprintf("%d scanned, %d repaired", res.Scanned, res.Repaired), err
			},
		}

		model := app.NewAppModel(tasks)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running dashboard: %w", err)
		}
		return nil
	},
}
