// Package report loads the migration journal and manifest into DuckDB for
// audit queries. The JSONL files stay the source of truth; DuckDB gives us
// aggregation and a Parquet archive for handover.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/brensch/vmrmigrate/internal/config"
)

// StatusCount is one row of the ledger status summary.
type StatusCount struct {
	Status string
	Count  int64
}

// LevelCount is one row of the per-top-level-folder summary.
type LevelCount struct {
	Level string
	Count int64
}

// Report holds the audit aggregates.
type Report struct {
	Statuses  []StatusCount
	TopLevels []LevelCount
	Migrated  int64
}

// Run builds the audit views, collects the summary aggregates, and archives
// the audit tables to Parquet under archiveDir when it is non-empty.
func Run(ctx context.Context, cfg config.Config, archiveDir string, logger *slog.Logger) (*Report, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting duckdb connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `INSTALL json; LOAD json;`); err != nil {
		return nil, fmt.Errorf("loading json extension: %w", err)
	}

	ledgerPath := strings.ReplaceAll(cfg.LedgerPath, `\`, `/`)
	manifestPath := strings.ReplaceAll(cfg.ManifestPath, `\`, `/`)

	createLedgerView := fmt.Sprintf(
		`CREATE OR REPLACE VIEW ledger AS SELECT * FROM read_json_auto('%s', format='newline_delimited');`,
		ledgerPath)
	if _, err := conn.ExecContext(ctx, createLedgerView); err != nil {
		return nil, fmt.Errorf("creating ledger view: %w", err)
	}

	haveManifest := fileExists(cfg.ManifestPath)
	if haveManifest {
		createManifestView := fmt.Sprintf(
			`CREATE OR REPLACE VIEW manifest AS SELECT * FROM read_json_auto('%s', format='newline_delimited');`,
			manifestPath)
		if _, err := conn.ExecContext(ctx, createManifestView); err != nil {
			return nil, fmt.Errorf("creating manifest view: %w", err)
		}
	}

	// Latest record per job decides its status, mirroring ledger replay.
	latestStatusSQL := `
	CREATE OR REPLACE VIEW job_status AS
	SELECT id, status FROM (
		SELECT id, status, ROW_NUMBER() OVER (PARTITION BY id ORDER BY timestamp DESC) AS rn
		FROM ledger
		WHERE status IN ('Pending', 'Success', 'Failed')
	) WHERE rn = 1;`
	if _, err := conn.ExecContext(ctx, latestStatusSQL); err != nil {
		return nil, fmt.Errorf("creating job_status view: %w", err)
	}

	rep := &Report{}

	statusRows, err := conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM job_status GROUP BY status ORDER BY status;`)
	if err != nil {
		return nil, fmt.Errorf("querying status counts: %w", err)
	}
	for statusRows.Next() {
		var sc StatusCount
		if err := statusRows.Scan(&sc.Status, &sc.Count); err != nil {
			statusRows.Close()
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		rep.Statuses = append(rep.Statuses, sc)
	}
	if err := statusRows.Err(); err != nil {
		statusRows.Close()
		return nil, fmt.Errorf("iterating status rows: %w", err)
	}
	statusRows.Close()

	if haveManifest {
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM manifest;`).Scan(&rep.Migrated); err != nil {
			return nil, fmt.Errorf("counting manifest entries: %w", err)
		}

		levelRows, err := conn.QueryContext(ctx, `
			SELECT COALESCE(hierarchy[1], '(root)') AS level, COUNT(*)
			FROM manifest GROUP BY level ORDER BY COUNT(*) DESC, level;`)
		if err != nil {
			return nil, fmt.Errorf("querying top level counts: %w", err)
		}
		for levelRows.Next() {
			var lc LevelCount
			if err := levelRows.Scan(&lc.Level, &lc.Count); err != nil {
				levelRows.Close()
				return nil, fmt.Errorf("scanning level row: %w", err)
			}
			rep.TopLevels = append(rep.TopLevels, lc)
		}
		if err := levelRows.Err(); err != nil {
			levelRows.Close()
			return nil, fmt.Errorf("iterating level rows: %w", err)
		}
		levelRows.Close()
	}

	logger.Info("audit summary built",
		slog.Int("status_groups", len(rep.Statuses)),
		slog.Int64("migrated", rep.Migrated))

	if archiveDir != "" {
		if err := archiveParquet(ctx, conn, archiveDir, haveManifest, logger); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// archiveParquet copies the audit views out as Parquet files.
func archiveParquet(ctx context.Context, conn *sql.Conn, dir string, haveManifest bool, logger *slog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating archive dir %s: %w", dir, err)
	}
	if _, err := conn.ExecContext(ctx, `INSTALL parquet; LOAD parquet;`); err != nil {
		return fmt.Errorf("loading parquet extension: %w", err)
	}

	views := []string{"ledger", "job_status"}
	if haveManifest {
		views = append(views, "manifest")
	}

	var copyErrors []error
	for _, view := range views {
		target := strings.ReplaceAll(filepath.Join(dir, view+".parquet"), `\`, `/`)
		copySQL := fmt.Sprintf(`COPY (SELECT * FROM %s) TO '%s' (FORMAT PARQUET);`, view, target)
		if _, err := conn.ExecContext(ctx, copySQL); err != nil {
			copyErrors = append(copyErrors, fmt.Errorf("archiving %s: %w", view, err))
			continue
		}
		logger.Info("archived audit table", slog.String("view", view), slog.String("path", target))
	}
	return errors.Join(copyErrors...)
}

// Print writes the summary to stdout as an aligned table.
func Print(rep *Report) {
	fmt.Println("--- Migration Audit Summary ---")
	fmt.Printf("%-12s | %s\n", "Status", "Jobs")
	fmt.Println(strings.Repeat("-", 25))
	for _, sc := range rep.Statuses {
		fmt.Printf("%-12s | %d\n", sc.Status, sc.Count)
	}
	if rep.Migrated > 0 {
		fmt.Printf("\nManifest entries: %d\n", rep.Migrated)
		fmt.Printf("%-30s | %s\n", "Top Level", "Documents")
		fmt.Println(strings.Repeat("-", 45))
		for _, lc := range rep.TopLevels {
			fmt.Printf("%-30s | %d\n", lc.Level, lc.Count)
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
