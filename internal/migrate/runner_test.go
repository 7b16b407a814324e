package migrate

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/vmrmigrate/internal/config"
	"github.com/brensch/vmrmigrate/internal/ledger"
	"github.com/brensch/vmrmigrate/internal/manifest"
	"github.com/brensch/vmrmigrate/internal/vmr"
)

// fakePage serves a flat two-level tree: folders at the root, files inside.
type fakePage struct {
	// files maps "folder/name" to content.
	files map[string][]byte
	meta  map[string]vmr.Metadata

	cwd          string
	resets       int
	downloads    int
	failFirstGet map[string]int // remaining failures per file name
}

func (p *fakePage) Login(ctx context.Context) error        { return nil }
func (p *fakePage) NavigateRoot(ctx context.Context) error { p.cwd = ""; return nil }

func (p *fakePage) OpenFolder(ctx context.Context, name string) error {
	p.cwd = name
	return nil
}

func (p *fakePage) Back(ctx context.Context) error { p.cwd = ""; return nil }

func (p *fakePage) ListEntries(ctx context.Context) ([]vmr.Entry, error) {
	var entries []vmr.Entry
	for key := range p.files {
		folder := filepath.Dir(key)
		if folder == p.cwd || (folder == "." && p.cwd == "") {
			entries = append(entries, vmr.Entry{Name: filepath.Base(key)})
		}
	}
	return entries, nil
}

func (p *fakePage) Download(ctx context.Context, e vmr.Entry) ([]byte, error) {
	p.downloads++
	if n := p.failFirstGet[e.Name]; n > 0 {
		p.failFirstGet[e.Name] = n - 1
		return nil, errors.New("transient network error")
	}
	key := e.Name
	if p.cwd != "" {
		key = p.cwd + "/" + e.Name
	}
	data, ok := p.files[key]
	if !ok {
		return nil, errors.New("no such file: " + key)
	}
	return data, nil
}

func (p *fakePage) FileMetadata(ctx context.Context, e vmr.Entry) (vmr.Metadata, error) {
	if m, ok := p.meta[e.Name]; ok {
		return m, nil
	}
	return vmr.Metadata{}, errors.New("no metadata form")
}

func (p *fakePage) FillMetadata(ctx context.Context, e vmr.Entry, m vmr.Metadata) error {
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) { return "", nil }

func (p *fakePage) Reset(ctx context.Context) error {
	p.resets++
	p.cwd = ""
	return nil
}

func (p *fakePage) Close() error { return nil }

type fixture struct {
	page         *fakePage
	led          *ledger.Ledger
	man          *manifest.Writer
	manifestPath string
	cfg          config.Config
	runner       *Runner
}

func newFixture(t *testing.T, page *fakePage, cfg config.Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	led, err := ledger.Open(filepath.Join(dir, "queue.jsonl"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })

	manifestPath := filepath.Join(dir, "manifest.jsonl")
	man, err := manifest.NewWriter(manifestPath)
	require.NoError(t, err)
	t.Cleanup(func() { man.Close() })

	if cfg.DestRoot == "" {
		cfg.DestRoot = filepath.Join(dir, "out")
	}
	if len(cfg.HierarchyLevels) == 0 {
		cfg.HierarchyLevels = []string{"Department"}
		cfg.PathTemplate = "{{Department}}/{{FileName}}"
	}
	cfg.ApplyDefaults()
	cfg.PaceMs = 1
	cfg.RetryDelayMs = 1

	return &fixture{
		page:         page,
		led:          led,
		man:          man,
		manifestPath: manifestPath,
		cfg:          cfg,
		runner:       NewRunner(page, led, man, cfg, logger),
	}
}

func buildZip(t *testing.T, name string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestRunMigratesPendingJobs(t *testing.T) {
	page := &fakePage{
		files: map[string][]byte{
			"Payroll/payslip.pdf": buildZip(t, "scan_001.pdf", []byte("%PDF payslip")),
			"Payroll/note.pdf":    []byte("%PDF plain note"),
		},
		meta: map[string]vmr.Metadata{
			"payslip.pdf": {Classification: "HR - Payroll", Category: "Normal"},
		},
	}
	fx := newFixture(t, page, config.Config{})

	_, err := fx.led.RecordDiscovered("", []string{"Payroll"}, "payslip.pdf")
	require.NoError(t, err)
	_, err = fx.led.RecordDiscovered("", []string{"Payroll"}, "note.pdf")
	require.NoError(t, err)

	sum, err := fx.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Attempted)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 0, sum.Failed)

	// The wrapped download lands unwrapped under its resolved path.
	doc, err := os.ReadFile(filepath.Join(fx.cfg.DestRoot, "Payroll", "payslip.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF payslip"), doc)

	// Sidecar carries the form metadata plus the filename.
	sidecar, err := os.ReadFile(filepath.Join(fx.cfg.DestRoot, "Payroll", "payslip.pdf.json"))
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), "HR - Payroll")
	assert.Contains(t, string(sidecar), "payslip.pdf")

	// The manifest records which archive member the stored bytes came from.
	entries, err := manifest.Load(fx.manifestPath, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	byFile := make(map[string]manifest.Entry, len(entries))
	for _, e := range entries {
		byFile[e.FileName] = e
	}
	assert.Equal(t, "scan_001.pdf", byFile["payslip.pdf"].PayloadName)
	assert.Equal(t, "note.pdf", byFile["note.pdf"].PayloadName)

	assert.Empty(t, fx.led.PendingJobs())
}

func TestRunRetriesTransientFailures(t *testing.T) {
	page := &fakePage{
		files:        map[string][]byte{"Payroll/a.pdf": []byte("%PDF a")},
		failFirstGet: map[string]int{"a.pdf": 2},
	}
	fx := newFixture(t, page, config.Config{})

	_, err := fx.led.RecordDiscovered("", []string{"Payroll"}, "a.pdf")
	require.NoError(t, err)

	sum, err := fx.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 3, page.downloads)
}

func TestRunRecordsFailureAfterRetriesExhausted(t *testing.T) {
	page := &fakePage{
		files:        map[string][]byte{"Payroll/a.pdf": []byte("%PDF a")},
		failFirstGet: map[string]int{"a.pdf": 99},
	}
	fx := newFixture(t, page, config.Config{})

	id, err := fx.led.RecordDiscovered("", []string{"Payroll"}, "a.pdf")
	require.NoError(t, err)

	sum, err := fx.runner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, fx.led.Succeeded(id))
	// Still pending for the next run.
	require.Len(t, fx.led.PendingJobs(), 1)
}

func TestRunRecyclesSessionEveryBatch(t *testing.T) {
	files := map[string][]byte{}
	names := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}
	for _, n := range names {
		files["Payroll/"+n] = []byte("%PDF " + n)
	}
	page := &fakePage{files: files}
	fx := newFixture(t, page, config.Config{BatchSize: 2})

	for _, n := range names {
		_, err := fx.led.RecordDiscovered("", []string{"Payroll"}, n)
		require.NoError(t, err)
	}

	sum, err := fx.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Succeeded)
	// Boundaries before jobs 2 and 4.
	assert.Equal(t, 2, page.resets)
}

func TestRunCollisionGetsCounterSuffix(t *testing.T) {
	page := &fakePage{
		files: map[string][]byte{
			"A/doc.pdf": []byte("%PDF first"),
			"B/doc.pdf": []byte("%PDF second"),
		},
	}
	cfg := config.Config{
		HierarchyLevels: []string{"Department"},
		PathTemplate:    "flat/{{FileName}}",
	}
	fx := newFixture(t, page, cfg)

	_, err := fx.led.RecordDiscovered("", []string{"A"}, "doc.pdf")
	require.NoError(t, err)
	_, err = fx.led.RecordDiscovered("", []string{"B"}, "doc.pdf")
	require.NoError(t, err)

	sum, err := fx.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Succeeded)

	first, err := os.ReadFile(filepath.Join(fx.cfg.DestRoot, "flat", "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF first"), first)

	second, err := os.ReadFile(filepath.Join(fx.cfg.DestRoot, "flat", "doc (1).pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF second"), second)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	page := &fakePage{
		files: map[string][]byte{"Payroll/a.pdf": []byte("%PDF a")},
	}
	fx := newFixture(t, page, config.Config{DryRun: true})

	_, err := fx.led.RecordDiscovered("", []string{"Payroll"}, "a.pdf")
	require.NoError(t, err)

	sum, err := fx.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)

	_, statErr := os.Stat(fx.cfg.DestRoot)
	assert.True(t, os.IsNotExist(statErr))
	// Ledger untouched so a real run still executes the job.
	require.Len(t, fx.led.PendingJobs(), 1)
}

func TestRunResumesAfterPartialRun(t *testing.T) {
	page := &fakePage{
		files: map[string][]byte{
			"Payroll/a.pdf": []byte("%PDF a"),
			"Payroll/b.pdf": []byte("%PDF b"),
		},
	}
	fx := newFixture(t, page, config.Config{})

	idA, err := fx.led.RecordDiscovered("", []string{"Payroll"}, "a.pdf")
	require.NoError(t, err)
	_, err = fx.led.RecordDiscovered("", []string{"Payroll"}, "b.pdf")
	require.NoError(t, err)
	require.NoError(t, fx.led.RecordResult(idA, ledger.StatusSuccess, "already done"))

	sum, err := fx.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Attempted)
	assert.Equal(t, 1, sum.Succeeded)
}
