// Package crawler walks the records tree depth-first and feeds every
// discovered document into the ledger as a Pending job. Discovery is
// deliberately separated from execution so a crawl can be re-run cheaply and
// execution can resume from the ledger alone.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/brensch/vmrmigrate/internal/config"
	"github.com/brensch/vmrmigrate/internal/ledger"
	"github.com/brensch/vmrmigrate/internal/retry"
	"github.com/brensch/vmrmigrate/internal/vmr"
)

// Stats summarises a crawl.
type Stats struct {
	FoldersVisited  int
	FilesDiscovered int
	FoldersSkipped  int
}

// Crawler drives a Page through the full tree. It is single-session and
// sequential; the remote UI cannot tolerate concurrent navigation.
type Crawler struct {
	page    vmr.Page
	led     *ledger.Ledger
	logger  *slog.Logger
	limiter *rate.Limiter

	attempts int
	delay    time.Duration

	skipNames map[string]bool
	skipRe    *regexp.Regexp

	stats Stats
}

// New builds a Crawler. An invalid skip_regex is rejected here rather than
// silently ignored mid-crawl.
func New(page vmr.Page, led *ledger.Ledger, cfg config.Config, logger *slog.Logger) (*Crawler, error) {
	c := &Crawler{
		page:      page,
		led:       led,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Every(cfg.Pace()), 1),
		attempts:  cfg.MaxRetries,
		delay:     cfg.RetryDelay(),
		skipNames: make(map[string]bool, len(cfg.FoldersToSkip)),
	}
	for _, name := range cfg.FoldersToSkip {
		c.skipNames[strings.ToLower(strings.TrimSpace(name))] = true
	}
	if cfg.SkipRegex != "" {
		re, err := regexp.Compile("(?i)" + cfg.SkipRegex)
		if err != nil {
			return nil, fmt.Errorf("compiling skip_regex: %w", err)
		}
		c.skipRe = re
	}
	return c, nil
}

// Run logs in, navigates to the tree root, and crawls everything reachable.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	if err := c.page.Login(ctx); err != nil {
		return c.stats, fmt.Errorf("logging in: %w", err)
	}
	if err := c.page.NavigateRoot(ctx); err != nil {
		return c.stats, fmt.Errorf("navigating to root: %w", err)
	}

	err := c.crawlFolder(ctx, nil)

	c.logger.Info("crawl finished",
		slog.Int("folders_visited", c.stats.FoldersVisited),
		slog.Int("files_discovered", c.stats.FilesDiscovered),
		slog.Int("folders_skipped", c.stats.FoldersSkipped))
	return c.stats, err
}

// crawlFolder records every file in the current view, then recurses into
// each child folder. The sibling list is snapshotted before any descent so a
// stale grid after returning cannot skip or duplicate subtrees.
func (c *Crawler) crawlFolder(ctx context.Context, trail []string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.stats.FoldersVisited++
	l := c.logger.With(slog.String("folder", "/"+strings.Join(trail, "/")))

	entries, err := c.listEntries(ctx)
	if err != nil {
		return fmt.Errorf("listing %v: %w", trail, err)
	}

	var folders []string
	for _, e := range entries {
		if e.IsFolder {
			folders = append(folders, e.Name)
			continue
		}
		if _, err := c.led.RecordDiscovered(e.Href, trail, e.Name); err != nil {
			return fmt.Errorf("recording %s: %w", e.Name, err)
		}
		c.stats.FilesDiscovered++
	}
	l.Debug("folder enumerated",
		slog.Int("files", len(entries)-len(folders)),
		slog.Int("subfolders", len(folders)))

	for _, name := range folders {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.shouldSkip(name) {
			c.stats.FoldersSkipped++
			l.Info("skipping folder", slog.String("name", name))
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.openFolder(ctx, name); err != nil {
			return fmt.Errorf("opening folder %s under %v: %w", name, trail, err)
		}
		child := append(append([]string(nil), trail...), name)
		if err := c.crawlFolder(ctx, child); err != nil {
			return err
		}
		if err := c.returnTo(ctx, trail); err != nil {
			return err
		}
	}
	return nil
}

// returnTo restores the view to trail after finishing a subtree. The cheap
// path is a single Back; when that leaves the grid unusable the full
// navigation path is replayed from the root.
func (c *Crawler) returnTo(ctx context.Context, trail []string) error {
	backErr := c.page.Back(ctx)
	if backErr == nil {
		if _, err := c.page.ListEntries(ctx); err == nil {
			return nil
		}
	} else {
		c.logger.Warn("back navigation failed, replaying path from root",
			slog.String("error", backErr.Error()))
	}

	if err := c.navigatePath(ctx, trail); err != nil {
		return fmt.Errorf("recovering to %v: %w", trail, err)
	}
	return nil
}

func (c *Crawler) navigatePath(ctx context.Context, trail []string) error {
	if err := c.page.NavigateRoot(ctx); err != nil {
		return err
	}
	for _, name := range trail {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.openFolder(ctx, name); err != nil {
			return fmt.Errorf("reopening %s: %w", name, err)
		}
	}
	return nil
}

// listEntries and openFolder apply the bounded-retry policy every remote
// interaction gets; one transient grid miss must not abort the whole crawl.
func (c *Crawler) listEntries(ctx context.Context) ([]vmr.Entry, error) {
	var entries []vmr.Entry
	err := retry.Do(ctx, c.attempts, c.delay, c.logger, "list entries", func(ctx context.Context) error {
		var err error
		entries, err = c.page.ListEntries(ctx)
		return err
	})
	return entries, err
}

func (c *Crawler) openFolder(ctx context.Context, name string) error {
	return retry.Do(ctx, c.attempts, c.delay, c.logger, "open "+name, func(ctx context.Context) error {
		return c.page.OpenFolder(ctx, name)
	})
}

func (c *Crawler) shouldSkip(name string) bool {
	if c.skipNames[strings.ToLower(strings.TrimSpace(name))] {
		return true
	}
	if c.skipRe != nil && c.skipRe.MatchString(name) {
		return true
	}
	return false
}
