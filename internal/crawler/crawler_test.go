package crawler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/vmrmigrate/internal/config"
	"github.com/brensch/vmrmigrate/internal/ledger"
	"github.com/brensch/vmrmigrate/internal/vmr"
)

type fakeNode struct {
	children []*fakeNode
	name     string
	files    []string
}

func folder(name string, children ...*fakeNode) *fakeNode {
	return &fakeNode{name: name, children: children}
}

func withFiles(n *fakeNode, files ...string) *fakeNode {
	n.files = files
	return n
}

// fakePage simulates grid navigation over an in-memory tree, with optional
// Back failures to exercise path-replay recovery.
type fakePage struct {
	root  *fakeNode
	stack []*fakeNode

	loggedIn   bool
	backCalls  int
	failBackAt int // 1-based call number that errors; 0 disables
	listCalls  int
	failListAt int // 1-based ListEntries call that errors once; 0 disables
	resets     int
}

func (p *fakePage) Login(ctx context.Context) error {
	p.loggedIn = true
	return nil
}

func (p *fakePage) NavigateRoot(ctx context.Context) error {
	p.stack = []*fakeNode{p.root}
	return nil
}

func (p *fakePage) current() *fakeNode {
	return p.stack[len(p.stack)-1]
}

func (p *fakePage) OpenFolder(ctx context.Context, name string) error {
	for _, c := range p.current().children {
		if c.name == name {
			p.stack = append(p.stack, c)
			return nil
		}
	}
	return errors.New("no such folder: " + name)
}

func (p *fakePage) Back(ctx context.Context) error {
	p.backCalls++
	if p.failBackAt != 0 && p.backCalls == p.failBackAt {
		return errors.New("session lost")
	}
	if len(p.stack) > 1 {
		p.stack = p.stack[:len(p.stack)-1]
	}
	return nil
}

func (p *fakePage) ListEntries(ctx context.Context) ([]vmr.Entry, error) {
	p.listCalls++
	if p.failListAt != 0 && p.listCalls == p.failListAt {
		return nil, errors.New("selector not found")
	}
	var entries []vmr.Entry
	for _, f := range p.current().files {
		entries = append(entries, vmr.Entry{Name: f})
	}
	for _, c := range p.current().children {
		entries = append(entries, vmr.Entry{Name: c.name, IsFolder: true})
	}
	return entries, nil
}

func (p *fakePage) Download(ctx context.Context, e vmr.Entry) ([]byte, error) {
	return []byte("data:" + e.Name), nil
}

func (p *fakePage) FileMetadata(ctx context.Context, e vmr.Entry) (vmr.Metadata, error) {
	return vmr.Metadata{FileName: e.Name}, nil
}

func (p *fakePage) FillMetadata(ctx context.Context, e vmr.Entry, m vmr.Metadata) error {
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	return "", nil
}

func (p *fakePage) Reset(ctx context.Context) error {
	p.resets++
	return p.NavigateRoot(ctx)
}

func (p *fakePage) Close() error { return nil }

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "queue.jsonl"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func testTree() *fakeNode {
	return withFiles(folder("",
		withFiles(folder("Payroll",
			withFiles(folder("2024"), "jan.pdf", "feb.pdf"),
		), "summary.pdf"),
		withFiles(folder("Recruitment"), "cv.pdf"),
	), "root.pdf")
}

func TestCrawlDiscoversWholeTree(t *testing.T) {
	page := &fakePage{root: testTree()}
	led := newTestLedger(t)

	c, err := New(page, led, config.Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	stats, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, page.loggedIn)
	assert.Equal(t, 4, stats.FoldersVisited)
	assert.Equal(t, 5, stats.FilesDiscovered)

	pending := led.PendingJobs()
	require.Len(t, pending, 5)

	byID := make(map[string][]string)
	for _, rec := range pending {
		byID[rec.Filename] = rec.Hierarchy
	}
	assert.Equal(t, []string(nil), byID["root.pdf"])
	assert.Equal(t, []string{"Payroll"}, byID["summary.pdf"])
	assert.Equal(t, []string{"Payroll", "2024"}, byID["jan.pdf"])
	assert.Equal(t, []string{"Recruitment"}, byID["cv.pdf"])
}

func TestCrawlRecoversFromBackFailure(t *testing.T) {
	page := &fakePage{root: testTree(), failBackAt: 1}
	led := newTestLedger(t)

	c, err := New(page, led, config.Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.FilesDiscovered)
	assert.Equal(t, 4, stats.FoldersVisited)
}

func TestCrawlSkipRules(t *testing.T) {
	tree := folder("",
		withFiles(folder("Payroll"), "keep.pdf"),
		withFiles(folder("Archive"), "old.pdf"),
		withFiles(folder("tmp_scratch"), "junk.pdf"),
	)
	page := &fakePage{root: tree}
	led := newTestLedger(t)

	cfg := config.Config{
		FoldersToSkip: []string{"ARCHIVE"},
		SkipRegex:     `^tmp_`,
	}
	c, err := New(page, led, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FoldersSkipped)
	assert.Equal(t, 1, stats.FilesDiscovered)

	pending := led.PendingJobs()
	require.Len(t, pending, 1)
	assert.Equal(t, "keep.pdf", pending[0].Filename)
}

func TestCrawlRerunSkipsSucceeded(t *testing.T) {
	page := &fakePage{root: testTree()}
	led := newTestLedger(t)

	c, err := New(page, led, config.Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	require.NoError(t, err)

	id := ledger.JobID("", []string{"Payroll", "2024"}, "jan.pdf")
	require.NoError(t, led.RecordResult(id, ledger.StatusSuccess, ""))

	// Second crawl rediscovers everything; jan.pdf stays done.
	page2 := &fakePage{root: testTree()}
	c2, err := New(page2, led, config.Config{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	_, err = c2.Run(context.Background())
	require.NoError(t, err)

	for _, rec := range led.PendingJobs() {
		assert.NotEqual(t, "jan.pdf", rec.Filename)
	}
	assert.True(t, led.Succeeded(id))
}

func TestCrawlRetriesTransientListFailure(t *testing.T) {
	// The second grid listing fails once; the bounded retry must absorb it
	// instead of aborting the crawl.
	page := &fakePage{root: testTree(), failListAt: 2}
	led := newTestLedger(t)

	cfg := config.Config{MaxRetries: 3, RetryDelayMs: 1}
	c, err := New(page, led, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	stats, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.FilesDiscovered)
	assert.Equal(t, 4, stats.FoldersVisited)
}

func TestInvalidSkipRegexRejected(t *testing.T) {
	page := &fakePage{root: testTree()}
	led := newTestLedger(t)

	_, err := New(page, led, config.Config{SkipRegex: `([bad`}, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}
