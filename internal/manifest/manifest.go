// Package manifest records what was migrated and where it landed. The live
// manifest is line-delimited JSON appended during migration; the restructure
// pass and the indexing CSV are derived from it afterwards.
package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/brensch/vmrmigrate/internal/vmr"
)

// Entry is one migrated document.
type Entry struct {
	JobID     string   `json:"job_id"`
	SourceURL string   `json:"source_url,omitempty"`
	Hierarchy []string `json:"hierarchy"`
	FileName  string   `json:"file_name"`
	// PayloadName is the archive member the stored bytes came from when the
	// download was ZIP-wrapped; equal to FileName otherwise.
	PayloadName string       `json:"payload_name,omitempty"`
	StoredPath  string       `json:"stored_path"`
	Status      string       `json:"status"`
	Metadata    vmr.Metadata `json:"metadata"`
	MigratedAt  string       `json:"migrated_at"`
}

// Writer appends entries to the manifest file. Like the ledger it is
// single-writer, append-only.
type Writer struct {
	path string
	file *os.File
}

// NewWriter opens the manifest for appending, creating it if absent.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	return &Writer{path: path, file: f}, nil
}

// Append writes one entry as a JSON line.
func (w *Writer) Append(e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding manifest entry %s: %w", e.JobID, err)
	}
	if _, err := w.file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("appending to manifest %s: %w", w.path, err)
	}
	return nil
}

// Close syncs and closes the manifest file.
func (w *Writer) Close() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("syncing manifest %s: %w", w.path, err)
	}
	return w.file.Close()
}

// Load reads every readable entry, last-write-wins per job id, preserving
// first-seen order. Unreadable lines are skipped with a warning.
func Load(path string, logger *slog.Logger) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	defer f.Close()

	var order []string
	latest := make(map[string]Entry)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			logger.Warn("skipping unreadable manifest line",
				slog.String("manifest", path),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()))
			continue
		}
		if _, seen := latest[e.JobID]; !seen {
			order = append(order, e.JobID)
		}
		latest[e.JobID] = e
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(order))
	for _, id := range order {
		entries = append(entries, latest[id])
	}
	return entries, nil
}
