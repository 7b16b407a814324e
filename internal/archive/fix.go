package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FixResult summarises a repair walk.
type FixResult struct {
	Scanned  int
	Repaired int
	Skipped  int
}

// FixTree walks root and replaces every ZIP-disguised file with its
// unwrapped payload, keeping the original filename. Metadata sidecars are
// left alone. Per-file failures are collected, never fatal to the walk.
func FixTree(ctx context.Context, root string, dryRun bool, logger *slog.Logger) (FixResult, error) {
	var res FixResult
	var fixErrors []error

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fixErrors = append(fixErrors, fmt.Errorf("walking %s: %w", path, err))
			return nil
		}
		if d.IsDir() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if strings.EqualFold(filepath.Ext(path), ".json") {
			res.Skipped++
			return nil
		}
		res.Scanned++

		data, err := os.ReadFile(path)
		if err != nil {
			fixErrors = append(fixErrors, fmt.Errorf("reading %s: %w", path, err))
			return nil
		}
		if !IsZip(data) {
			return nil
		}

		// Archives sometimes nest, so unwrap until the payload settles.
		payload := data
		for IsZip(payload) {
			inner, _, err := Unwrap(payload, filepath.Base(path), logger)
			if err != nil {
				fixErrors = append(fixErrors, fmt.Errorf("unwrapping %s: %w", path, err))
				return nil
			}
			if bytes.Equal(inner, payload) {
				break
			}
			payload = inner
		}
		if IsZip(payload) {
			logger.Warn("could not repair wrapped file", slog.String("path", path))
			return nil
		}

		if dryRun {
			logger.Info("would repair wrapped file", slog.String("path", path))
			res.Repaired++
			return nil
		}

		if err := os.WriteFile(path, payload, 0o644); err != nil {
			fixErrors = append(fixErrors, fmt.Errorf("rewriting %s: %w", path, err))
			return nil
		}
		logger.Info("repaired wrapped file",
			slog.String("path", path),
			slog.Int("size", len(payload)))
		res.Repaired++
		return nil
	})

	if walkErr != nil {
		fixErrors = append(fixErrors, walkErr)
	}
	return res, errors.Join(fixErrors...)
}
