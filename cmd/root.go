package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/vmrmigrate/internal/config"
)

var (
	// Flags bound in init()
	cfgFile   string
	logFormat string
	logLevel  string
	logOutput string
	dryRun    bool

	// Populated in PersistentPreRunE
	rootLogger *slog.Logger
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmrmigrate",
	Short: "Migrate HR documents out of the legacy records system.",
	Long: `vmrmigrate crawls the legacy web records system, downloads every
document into a flattened local hierarchy, and pushes normalized metadata
back afterwards.

The usual order is 'crawl' to build the job queue, 'run' to execute it,
then 'restructure' and 'index' for the handover artifacts. Progress is
journalled, so every command can be interrupted and re-run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		if logOutput != "" && strings.ToLower(logOutput) != "stderr" {
			if strings.ToLower(logOutput) == "stdout" {
				logWriter = os.Stdout
			} else {
				f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
				}
				logWriter = f
			}
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dryRun {
			cfg.DryRun = true
		}
		appConfig = cfg
		rootLogger.Debug("configuration loaded", slog.String("config", cfgFile))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main().
func Execute() {
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(restructureCmd)
	rootCmd.AddCommand(fixzipsCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(tuiCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("command failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.json", "Path to the migration config file (JSON or JSON5)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Log what would happen without writing anything")

	rootCmd.Version = "1.0.0"
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getConfig() config.Config {
	return appConfig
}
