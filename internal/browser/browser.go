// Package browser implements vmr.Page on a headless Chrome session driven
// through chromedp. All the fragile selector knowledge for the legacy UI
// lives here; nothing above this package touches the DOM.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"github.com/brensch/vmrmigrate/internal/config"
	"github.com/brensch/vmrmigrate/internal/vmr"
)

// Selectors for the legacy UI. The grid markup is stable; the login form has
// not changed in years.
const (
	selCorporateID = `#txtCorporateId`
	selUsername    = `#txtUserName`
	selPassword    = `#txtPassword`
	selLoginButton = `#btnLogin`
	// Shown when another session holds the account.
	selTakeoverLink = `a#lnkLoginHere`
	selGrid         = `span.mail-sender`
)

const loginAttempts = 3

// Session is a live Chrome session implementing vmr.Page.
type Session struct {
	cfg    config.Config
	logger *slog.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	downloadDir string
}

var _ vmr.Page = (*Session)(nil)

// NewSession launches headless Chrome. Close must be called to reap it.
func NewSession(cfg config.Config, logger *slog.Logger) (*Session, error) {
	downloadDir, err := os.MkdirTemp("", "vmrmigrate-dl-*")
	if err != nil {
		return nil, fmt.Errorf("creating download dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)

	s := &Session{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		downloadDir: downloadDir,
	}
	if err := s.newTab(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) newTab() error {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx)

	err := chromedp.Run(s.tabCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(s.downloadDir),
	)
	if err != nil {
		return fmt.Errorf("configuring download behaviour: %w", err)
	}
	return nil
}

// run executes actions on the tab under the caller's deadline.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavTimeout())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Login authenticates, clearing the session-takeover prompt when another
// login holds the account.
func (s *Session) Login(ctx context.Context) error {
	creds := s.cfg.Creds
	if creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("credentials not set, export VMR_USERNAME and VMR_PASSWORD")
	}

	var lastErr error
	for attempt := 1; attempt <= loginAttempts; attempt++ {
		lastErr = s.run(ctx,
			chromedp.Navigate(s.cfg.BaseURL),
			chromedp.WaitVisible(selUsername, chromedp.ByQuery),
			chromedp.SetValue(selCorporateID, creds.CorporateID, chromedp.ByQuery),
			chromedp.SetValue(selUsername, creds.Username, chromedp.ByQuery),
			chromedp.SetValue(selPassword, creds.Password, chromedp.ByQuery),
			chromedp.Click(selLoginButton, chromedp.ByQuery),
			chromedp.Sleep(2*time.Second),
		)
		if lastErr == nil {
			s.dismissTakeover(ctx)
			s.logger.Info("logged in", slog.Int("attempt", attempt))
			return nil
		}
		s.logger.Warn("login attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
	}
	return fmt.Errorf("login failed after %d attempts: %w", loginAttempts, lastErr)
}

// dismissTakeover clicks through the "Login Here" prompt if present. Absence
// is the normal case, so failures are swallowed.
func (s *Session) dismissTakeover(ctx context.Context) {
	shortCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := s.run(shortCtx,
		chromedp.Click(selTakeoverLink, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	)
	if err == nil {
		s.logger.Info("cleared session takeover prompt")
	}
}

// NavigateRoot opens the document tree root and waits for the grid.
func (s *Session) NavigateRoot(ctx context.Context) error {
	err := s.run(ctx,
		chromedp.Navigate(s.cfg.BaseURL),
		chromedp.WaitVisible(selGrid, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("opening tree root: %w", err)
	}
	s.dismissTakeover(ctx)
	return nil
}

// OpenFolder clicks the grid row whose name matches exactly.
func (s *Session) OpenFolder(ctx context.Context, name string) error {
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsFolder && e.Name == name {
			if e.OnClick == "" {
				return fmt.Errorf("folder %s has no click handler", name)
			}
			err := s.run(ctx,
				chromedp.Evaluate(e.OnClick, nil),
				chromedp.Sleep(time.Second),
				chromedp.WaitVisible(selGrid, chromedp.ByQuery),
			)
			if err != nil {
				return fmt.Errorf("opening folder %s: %w", name, err)
			}
			return nil
		}
	}
	return fmt.Errorf("folder %s not found in current view", name)
}

// Back uses browser history and verifies the grid came back with it.
func (s *Session) Back(ctx context.Context) error {
	err := s.run(ctx,
		chromedp.NavigateBack(),
		chromedp.WaitVisible(selGrid, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigating back: %w", err)
	}
	return nil
}

// ListEntries snapshots and parses the current grid.
func (s *Session) ListEntries(ctx context.Context) ([]vmr.Entry, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return nil, fmt.Errorf("reading grid html: %w", err)
	}
	return vmr.ParseGrid(html)
}

// Download triggers the file's handler and collects the resulting download
// from the session's download directory.
func (s *Session) Download(ctx context.Context, e vmr.Entry) ([]byte, error) {
	before, err := snapshotDir(s.downloadDir)
	if err != nil {
		return nil, err
	}

	var trigger chromedp.Action
	switch {
	case e.Href != "":
		trigger = chromedp.Navigate(e.Href)
	case e.OnClick != "":
		trigger = chromedp.Evaluate(e.OnClick, nil)
	default:
		return nil, fmt.Errorf("entry %s has no download target", e.Name)
	}
	if err := s.run(ctx, trigger); err != nil {
		return nil, fmt.Errorf("triggering download of %s: %w", e.Name, err)
	}

	path, err := s.awaitDownload(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", e.Name, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading downloaded %s: %w", e.Name, err)
	}
	os.Remove(path)
	return data, nil
}

// awaitDownload polls for a new, settled file in the download directory.
func (s *Session) awaitDownload(ctx context.Context, before map[string]bool) (string, error) {
	deadline := time.Now().Add(s.cfg.NavTimeout())
	var lastSize int64 = -1
	var candidate string

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}

		entries, err := os.ReadDir(s.downloadDir)
		if err != nil {
			return "", err
		}
		candidate = ""
		for _, ent := range entries {
			name := ent.Name()
			if before[name] || strings.HasSuffix(name, ".crdownload") {
				continue
			}
			candidate = filepath.Join(s.downloadDir, name)
		}
		if candidate == "" {
			continue
		}

		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.Size() > 0 && info.Size() == lastSize {
			return candidate, nil
		}
		lastSize = info.Size()
	}
	return "", fmt.Errorf("download did not complete within %s", s.cfg.NavTimeout())
}

func snapshotDir(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	return names, nil
}

// CurrentURL reports the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return url, nil
}

// Reset tears the tab down, opens a fresh one, and logs back in. Used at
// batch boundaries to keep the remote session from degrading.
func (s *Session) Reset(ctx context.Context) error {
	s.logger.Info("recycling browser session")
	if err := s.newTab(); err != nil {
		return err
	}
	if err := s.Login(ctx); err != nil {
		return err
	}
	return s.NavigateRoot(ctx)
}

// Close reaps the browser and the download scratch directory.
func (s *Session) Close() error {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if s.downloadDir != "" {
		os.RemoveAll(s.downloadDir)
	}
	return nil
}
