// Package ledger provides the append-only migration journal. Every state
// transition is one JSON line; current state is recovered by replaying the
// file from the top. Crash recovery falls out of the format: a torn final
// line is skipped and the job simply runs again.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Job statuses. Success is sticky across replay; only an explicit Reset
// record makes a succeeded job eligible again.
const (
	StatusPending = "Pending"
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
	StatusReset   = "Reset"
)

// Record is one journal line.
type Record struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Filename  string   `json:"filename,omitempty"`
	Hierarchy []string `json:"hierarchy,omitempty"`
	SourceURL string   `json:"source_url,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// JobID derives a stable identity for a discovered document: the source URL
// when the system exposes one, otherwise the hierarchy trail plus filename.
func JobID(sourceURL string, hierarchy []string, filename string) string {
	if sourceURL != "" {
		return sourceURL
	}
	return strings.Join(hierarchy, "/") + "/" + filename
}

// Ledger is the single writer over the journal file. Replay happens once at
// Open; appends update the in-memory view so callers never re-read the file.
type Ledger struct {
	path   string
	file   *os.File
	logger *slog.Logger

	order     []string            // discovery order
	jobs      map[string]Record   // latest Pending snapshot per id
	succeeded map[string]struct{} // ids with a live Success
}

// Open replays the journal at path (creating it if absent) and returns a
// Ledger ready for appends.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		logger:    logger.With(slog.String("ledger", path)),
		jobs:      make(map[string]Record),
		succeeded: make(map[string]struct{}),
	}
	if err := l.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s for append: %w", path, err)
	}
	l.file = f
	return l, nil
}

func (l *Ledger) replay() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening ledger %s: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Torn or corrupt lines lose at most one record.
			skipped++
			l.logger.Warn("skipping unreadable ledger line",
				slog.Int("line", lineNo),
				slog.String("error", err.Error()))
			continue
		}
		l.apply(rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading ledger %s: %w", l.path, err)
	}
	if skipped > 0 {
		l.logger.Warn("ledger replay skipped lines", slog.Int("count", skipped))
	}
	return nil
}

func (l *Ledger) apply(rec Record) {
	switch rec.Status {
	case StatusPending:
		if _, known := l.jobs[rec.ID]; !known {
			l.order = append(l.order, rec.ID)
		}
		l.jobs[rec.ID] = rec
	case StatusSuccess:
		l.succeeded[rec.ID] = struct{}{}
	case StatusReset:
		delete(l.succeeded, rec.ID)
	case StatusFailed:
		// Failed jobs stay pending; the record exists for the audit trail.
	default:
		l.logger.Warn("ignoring ledger record with unknown status",
			slog.String("id", rec.ID),
			slog.String("status", rec.Status))
	}
}

// RecordDiscovered appends a Pending record for a newly crawled document.
// Re-discovery of an already succeeded job is a no-op.
func (l *Ledger) RecordDiscovered(sourceURL string, hierarchy []string, filename string) (string, error) {
	id := JobID(sourceURL, hierarchy, filename)
	if _, done := l.succeeded[id]; done {
		return id, nil
	}
	rec := Record{
		ID:        id,
		Status:    StatusPending,
		Filename:  filename,
		Hierarchy: append([]string(nil), hierarchy...),
		SourceURL: sourceURL,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := l.append(rec); err != nil {
		return id, err
	}
	l.apply(rec)
	return id, nil
}

// RecordResult appends a terminal record for a job. Reason carries the error
// text for failures, or the written destination path for successes.
func (l *Ledger) RecordResult(id, status, reason string) error {
	rec := Record{
		ID:        id,
		Status:    status,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := l.append(rec); err != nil {
		return err
	}
	l.apply(rec)
	return nil
}

func (l *Ledger) append(rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding ledger record %s: %w", rec.ID, err)
	}
	if _, err := l.file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("appending to ledger %s: %w", l.path, err)
	}
	return nil
}

// PendingJobs returns the discovered jobs that have not succeeded, in
// discovery order.
func (l *Ledger) PendingJobs() []Record {
	var pending []Record
	for _, id := range l.order {
		if _, done := l.succeeded[id]; done {
			continue
		}
		pending = append(pending, l.jobs[id])
	}
	return pending
}

// Succeeded reports whether id has a live Success record.
func (l *Ledger) Succeeded(id string) bool {
	_, ok := l.succeeded[id]
	return ok
}

// Counts returns totals for the summary line: discovered, succeeded, pending.
func (l *Ledger) Counts() (int, int, int) {
	discovered := len(l.order)
	succeeded := 0
	for _, id := range l.order {
		if _, ok := l.succeeded[id]; ok {
			succeeded++
		}
	}
	return discovered, succeeded, discovered - succeeded
}

// Close syncs and closes the journal file.
func (l *Ledger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("syncing ledger %s: %w", l.path, err)
	}
	return l.file.Close()
}
