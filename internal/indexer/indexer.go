// Package indexer pushes normalized metadata back into the records system
// after migration. It reads the manifest, translates the human-facing values
// to the system's internal codes, and fills the indexing form per document.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/brensch/vmrmigrate/internal/config"
	"github.com/brensch/vmrmigrate/internal/manifest"
	"github.com/brensch/vmrmigrate/internal/retry"
	"github.com/brensch/vmrmigrate/internal/vmr"
)

// classificationCodes maps form labels to the system's internal
// classification identifiers. Unknown labels pass through unchanged.
var classificationCodes = map[string]string{
	"HR - Annual Review":      "vmr_HRannualreviewRelated",
	"HR - Current Employment": "vmr_HRcurrentEmploymentRelated",
	"HR - Educational":        "vmr_HReducationalRelated",
	"HR - Exit Formalities":   "vmr_HRexitRelated",
	"HR - Past Employment":    "vmr_HRpastemploymentRelated",
	"HR - Personal / KYC":     "vmr_HRpersonalkycRelated",
	"HR - Recruitment":        "vmr_HRrecruitmentRelated",
	"HR - Statutory":          "vmr_HRstatutoryRelated",
	"HR - Verification":       "vmr_HRverificationRelated",
}

// categoryCodes maps category labels to their internal codes.
var categoryCodes = map[string]string{
	"Normal":        "NORM",
	"Confidential":  "CONF",
	"Highly Secure": "HCONF",
}

// Summary counts one indexing run.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Indexer replays manifest metadata into the live system.
type Indexer struct {
	page    vmr.Page
	cfg     config.Config
	logger  *slog.Logger
	limiter *rate.Limiter
}

// New builds an Indexer over a live session.
func New(page vmr.Page, cfg config.Config, logger *slog.Logger) *Indexer {
	return &Indexer{
		page:    page,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(cfg.Pace()), 1),
	}
}

// Run fills the indexing form for every manifest entry that carries
// metadata. Entries without metadata are skipped; per-entry failures are
// collected and the run continues.
func (ix *Indexer) Run(ctx context.Context, entries []manifest.Entry) (Summary, error) {
	var sum Summary
	var failures []error

	if err := ix.page.Login(ctx); err != nil {
		return sum, fmt.Errorf("logging in: %w", err)
	}

	ix.logger.Info("starting indexing run", slog.Int("entries", len(entries)))

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return sum, errors.Join(append(failures, ctx.Err())...)
		default:
		}

		if isEmptyMetadata(e.Metadata) {
			sum.Skipped++
			ix.logger.Debug("no metadata to index", slog.String("job", e.JobID))
			continue
		}

		if err := ix.limiter.Wait(ctx); err != nil {
			return sum, errors.Join(append(failures, err)...)
		}

		md := Translate(e.Metadata)
		err := ix.indexOne(ctx, e, md)
		if err != nil {
			sum.Failed++
			failures = append(failures, fmt.Errorf("indexing %s: %w", e.JobID, err))
			ix.logger.Error("indexing failed",
				slog.String("job", e.JobID),
				slog.String("error", err.Error()))
			continue
		}
		sum.Succeeded++
	}

	ix.logger.Info("indexing run finished",
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("failed", sum.Failed),
		slog.Int("skipped", sum.Skipped))
	return sum, errors.Join(failures...)
}

// indexOne navigates to the entry's folder, finds the file, and saves the
// translated form. Retries share the job-boundary policy.
func (ix *Indexer) indexOne(ctx context.Context, e manifest.Entry, md vmr.Metadata) error {
	return retry.Do(ctx, ix.cfg.MaxRetries, ix.cfg.RetryDelay(), ix.logger, "index "+e.FileName, func(ctx context.Context) error {
		return ix.attempt(ctx, e, md)
	})
}

func (ix *Indexer) attempt(ctx context.Context, e manifest.Entry, md vmr.Metadata) error {
	if err := ix.page.NavigateRoot(ctx); err != nil {
		return err
	}
	for _, name := range e.Hierarchy {
		if err := ix.page.OpenFolder(ctx, name); err != nil {
			return err
		}
	}

	entries, err := ix.page.ListEntries(ctx)
	if err != nil {
		return err
	}
	for _, ge := range entries {
		if !ge.IsFolder && ge.Name == e.FileName {
			return ix.page.FillMetadata(ctx, ge, md)
		}
	}
	return fmt.Errorf("file %s not found in %v", e.FileName, e.Hierarchy)
}

// Translate maps human-facing metadata values to the system's internal
// codes. Values with no mapping pass through unchanged.
func Translate(md vmr.Metadata) vmr.Metadata {
	if code, ok := classificationCodes[md.Classification]; ok {
		md.Classification = code
	}
	if code, ok := categoryCodes[md.Category]; ok {
		md.Category = code
	}
	return md
}

func isEmptyMetadata(md vmr.Metadata) bool {
	stripped := md
	stripped.FileName = ""
	return stripped == (vmr.Metadata{})
}
