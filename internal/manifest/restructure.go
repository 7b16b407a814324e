package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/brensch/vmrmigrate/internal/config"
	"github.com/brensch/vmrmigrate/internal/fsutil"
)

// StructureVersion marks output of the current restructure layout.
const StructureVersion = "2.0"

// RestructureResult summarises a restructure run.
type RestructureResult struct {
	Copied  int
	Skipped int
	Failed  int
}

// V2Manifest is the JSON document describing the restructured tree.
type V2Manifest struct {
	StructureVersion string    `json:"structure_version"`
	GeneratedAt      string    `json:"generated_at"`
	Anchor           string    `json:"anchor"`
	Entries          []V2Entry `json:"entries"`
}

// V2Entry maps one migrated document to its restructured location.
type V2Entry struct {
	JobID      string       `json:"job_id"`
	OldPath    string       `json:"old_path"`
	NewPath    string       `json:"new_path"`
	Hierarchy  []string     `json:"hierarchy"`
	Metadata   MetadataView `json:"metadata"`
	MigratedAt string       `json:"migrated_at,omitempty"`
}

// MetadataView is the subset of form metadata carried into the v2 manifest.
type MetadataView struct {
	Classification string `json:"classification,omitempty"`
	DocumentType   string `json:"document_type,omitempty"`
	Category       string `json:"category,omitempty"`
}

// Restructure flattens a migrated tree around the anchor level: hierarchy
// segments up to and including the anchor are dropped, skip-listed segments
// are removed, and each file is copied under target_root at its filtered
// path. The v2 manifest describing the result is written beside the target
// root. Per-entry failures are collected, never fatal.
func Restructure(ctx context.Context, entries []Entry, cfg config.Config, logger *slog.Logger) (RestructureResult, *V2Manifest, error) {
	var res RestructureResult
	var failures []error

	var skipRe *regexp.Regexp
	if cfg.SkipRegex != "" {
		re, err := regexp.Compile("(?i)" + cfg.SkipRegex)
		if err != nil {
			return res, nil, fmt.Errorf("compiling skip_regex: %w", err)
		}
		skipRe = re
	}
	skipNames := make(map[string]bool, len(cfg.FoldersToSkip))
	for _, name := range cfg.FoldersToSkip {
		skipNames[strings.ToLower(strings.TrimSpace(name))] = true
	}

	v2 := &V2Manifest{
		StructureVersion: StructureVersion,
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		Anchor:           cfg.Anchor,
	}

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return res, v2, ctx.Err()
		default:
		}

		l := logger.With(slog.String("job", e.JobID))

		levels := trimToAnchor(e.Hierarchy, cfg.Anchor)
		var kept []string
		for _, lvl := range levels {
			if skipNames[strings.ToLower(strings.TrimSpace(lvl))] {
				continue
			}
			if skipRe != nil && skipRe.MatchString(lvl) {
				continue
			}
			kept = append(kept, lvl)
		}

		srcName := filepath.Base(e.StoredPath)
		src := filepath.Join(cfg.SourceRoot, e.StoredPath)
		if _, err := os.Stat(src); err != nil {
			res.Skipped++
			l.Warn("source file missing, skipping", slog.String("path", src))
			continue
		}

		relParts := append(append([]string(nil), kept...), srcName)
		dest := filepath.Join(cfg.TargetRoot, filepath.Join(relParts...))

		if cfg.DryRun {
			l.Info("would copy", slog.String("from", src), slog.String("to", dest))
		} else {
			unique, err := fsutil.UniquePath(dest)
			if err != nil {
				res.Failed++
				failures = append(failures, fmt.Errorf("placing %s: %w", e.JobID, err))
				continue
			}
			dest = unique
			if err := fsutil.CopyFile(src, dest); err != nil {
				res.Failed++
				failures = append(failures, fmt.Errorf("copying %s: %w", e.JobID, err))
				continue
			}
		}

		res.Copied++
		rel, err := filepath.Rel(cfg.TargetRoot, dest)
		if err != nil {
			rel = dest
		}
		v2.Entries = append(v2.Entries, V2Entry{
			JobID:     e.JobID,
			OldPath:   e.StoredPath,
			NewPath:   filepath.ToSlash(rel),
			Hierarchy: kept,
			Metadata: MetadataView{
				Classification: e.Metadata.Classification,
				DocumentType:   e.Metadata.DocumentType,
				Category:       e.Metadata.Category,
			},
			MigratedAt: e.MigratedAt,
		})
	}

	logger.Info("restructure finished",
		slog.Int("copied", res.Copied),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Bool("dry_run", cfg.DryRun))
	return res, v2, errors.Join(failures...)
}

// WriteV2 writes the restructured manifest as indented JSON.
func WriteV2(path string, v2 *V2Manifest) error {
	raw, err := json.MarshalIndent(v2, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding v2 manifest: %w", err)
	}
	return fsutil.WriteFile(path, append(raw, '\n'))
}

// trimToAnchor drops hierarchy segments up to and including the first
// case-insensitive match of anchor. Trails without the anchor are kept
// whole.
func trimToAnchor(hierarchy []string, anchor string) []string {
	if anchor == "" {
		return hierarchy
	}
	for i, lvl := range hierarchy {
		if strings.EqualFold(strings.TrimSpace(lvl), anchor) {
			return hierarchy[i+1:]
		}
	}
	return hierarchy
}
