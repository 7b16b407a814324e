// Package migrate executes pending ledger jobs against a live records
// session: download, unwrap, resolve, write, record. Execution is sequential
// and resumable; killing the process mid-run loses at most the job in
// flight.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/brensch/vmrmigrate/internal/archive"
	"github.com/brensch/vmrmigrate/internal/config"
	"github.com/brensch/vmrmigrate/internal/fsutil"
	"github.com/brensch/vmrmigrate/internal/ledger"
	"github.com/brensch/vmrmigrate/internal/manifest"
	"github.com/brensch/vmrmigrate/internal/pathing"
	"github.com/brensch/vmrmigrate/internal/retry"
	"github.com/brensch/vmrmigrate/internal/vmr"
)

// Progress is one update on the progress channel, shaped for the dashboard.
type Progress struct {
	JobID    string
	FileName string
	Status   string // Queued, Downloading, Unwrapping, Writing, Complete, Error
	Done     int
	Total    int
	Err      error
}

// Summary totals a run.
type Summary struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Runner owns one migration run over the pending set.
type Runner struct {
	page     vmr.Page
	led      *ledger.Ledger
	man      *manifest.Writer
	resolver *pathing.Resolver
	cfg      config.Config
	logger   *slog.Logger
	limiter  *rate.Limiter

	// Progress receives per-job updates when non-nil. Sends are
	// best-effort; the runner never blocks on a slow consumer.
	Progress chan<- Progress
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(page vmr.Page, led *ledger.Ledger, man *manifest.Writer, cfg config.Config, logger *slog.Logger) *Runner {
	return &Runner{
		page:     page,
		led:      led,
		man:      man,
		resolver: pathing.NewResolver(cfg, logger),
		cfg:      cfg,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(cfg.Pace()), 1),
	}
}

// Run logs in and works through the pending jobs in discovery order,
// recycling the browser session every batch. Per-job failures are recorded
// and collected; only setup errors and cancellation abort the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	var jobErrors []error

	pending := r.led.PendingJobs()
	if len(pending) == 0 {
		r.logger.Info("nothing pending")
		return sum, nil
	}

	if err := r.page.Login(ctx); err != nil {
		return sum, fmt.Errorf("logging in: %w", err)
	}
	if err := r.page.NavigateRoot(ctx); err != nil {
		return sum, fmt.Errorf("navigating to root: %w", err)
	}

	r.logger.Info("starting migration run",
		slog.Int("pending", len(pending)),
		slog.Int("batch_size", r.cfg.BatchSize),
		slog.Bool("dry_run", r.cfg.DryRun))

	for i, job := range pending {
		select {
		case <-ctx.Done():
			return sum, errors.Join(append(jobErrors, ctx.Err())...)
		default:
		}

		if i > 0 && i%r.cfg.BatchSize == 0 {
			r.logger.Info("batch boundary, recycling session", slog.Int("completed", i))
			if err := r.page.Reset(ctx); err != nil {
				return sum, fmt.Errorf("recycling session at job %d: %w", i, err)
			}
		}

		sum.Attempted++
		r.report(Progress{JobID: job.ID, FileName: job.Filename, Status: "Downloading", Done: i, Total: len(pending)})

		l := r.logger.With(slog.String("job", job.ID))
		start := time.Now()

		err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryDelay(), l, "migrate "+job.Filename, func(ctx context.Context) error {
			return r.executeJob(ctx, job)
		})
		if err != nil {
			if ctx.Err() != nil {
				return sum, errors.Join(append(jobErrors, ctx.Err())...)
			}
			sum.Failed++
			jobErrors = append(jobErrors, err)
			l.Error("job failed", slog.String("error", err.Error()))
			if recErr := r.led.RecordResult(job.ID, ledger.StatusFailed, err.Error()); recErr != nil {
				return sum, errors.Join(append(jobErrors, recErr)...)
			}
			r.report(Progress{JobID: job.ID, FileName: job.Filename, Status: "Error", Done: i + 1, Total: len(pending), Err: err})
			continue
		}

		sum.Succeeded++
		l.Info("job migrated", slog.Duration("took", time.Since(start).Round(time.Millisecond)))
		r.report(Progress{JobID: job.ID, FileName: job.Filename, Status: "Complete", Done: i + 1, Total: len(pending)})
	}

	r.logger.Info("migration run finished",
		slog.Int("attempted", sum.Attempted),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("failed", sum.Failed))
	return sum, errors.Join(jobErrors...)
}

// executeJob runs one job end to end. Every attempt renavigates from the
// root so a retry never depends on leftover page state.
func (r *Runner) executeJob(ctx context.Context, job ledger.Record) error {
	if err := r.navigatePath(ctx, job.Hierarchy); err != nil {
		return err
	}

	entries, err := r.page.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("listing folder for %s: %w", job.Filename, err)
	}
	var entry *vmr.Entry
	for i := range entries {
		if !entries[i].IsFolder && entries[i].Name == job.Filename {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("file %s no longer present in %v", job.Filename, job.Hierarchy)
	}

	data, err := r.page.Download(ctx, *entry)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", job.Filename, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("downloaded %s is empty", job.Filename)
	}

	md, err := r.page.FileMetadata(ctx, *entry)
	if err != nil {
		// Metadata is nice to have; the document is the point.
		r.logger.Warn("could not read form metadata",
			slog.String("file", job.Filename),
			slog.String("error", err.Error()))
		md = vmr.Metadata{}
	}
	if md.FileName == "" {
		md.FileName = job.Filename
	}

	payload, payloadName, err := archive.Unwrap(data, job.Filename, r.logger)
	if err != nil {
		return fmt.Errorf("unwrapping %s: %w", job.Filename, err)
	}

	rel := r.resolver.Resolve(job.Hierarchy, job.Filename)
	dest := filepath.Join(r.cfg.DestRoot, rel)

	if r.cfg.DryRun {
		r.logger.Info("dry run, would write",
			slog.String("file", job.Filename),
			slog.String("dest", dest),
			slog.Int("size", len(payload)))
		return nil
	}

	dest, err = fsutil.UniquePath(dest)
	if err != nil {
		return fmt.Errorf("placing %s: %w", job.Filename, err)
	}
	if err := fsutil.WriteFile(dest, payload); err != nil {
		return err
	}
	if err := r.writeSidecar(dest, md); err != nil {
		return err
	}

	storedRel, err := filepath.Rel(r.cfg.DestRoot, dest)
	if err != nil {
		storedRel = dest
	}
	if err := r.man.Append(manifest.Entry{
		JobID:       job.ID,
		SourceURL:   job.SourceURL,
		Hierarchy:   job.Hierarchy,
		FileName:    job.Filename,
		PayloadName: payloadName,
		StoredPath:  filepath.ToSlash(storedRel),
		Status:      ledger.StatusSuccess,
		Metadata:    md,
		MigratedAt:  time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	return r.led.RecordResult(job.ID, ledger.StatusSuccess, filepath.ToSlash(storedRel))
}

func (r *Runner) writeSidecar(docPath string, md vmr.Metadata) error {
	raw, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sidecar for %s: %w", docPath, err)
	}
	return fsutil.WriteFile(docPath+".json", append(raw, '\n'))
}

func (r *Runner) navigatePath(ctx context.Context, trail []string) error {
	if err := r.page.NavigateRoot(ctx); err != nil {
		return fmt.Errorf("navigating to root: %w", err)
	}
	for _, name := range trail {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := r.page.OpenFolder(ctx, name); err != nil {
			return fmt.Errorf("opening %s in %s: %w", name, strings.Join(trail, "/"), err)
		}
	}
	return nil
}

func (r *Runner) report(p Progress) {
	if r.Progress == nil {
		return
	}
	select {
	case r.Progress <- p:
	default:
	}
}
