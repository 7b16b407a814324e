// Package fsutil holds the filesystem helpers shared by the migration writer
// and the restructure pass.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UniquePath returns dest if nothing there collides, otherwise the first
// "name (n).ext" variant that does not. Collisions are judged
// case-insensitively so the result is stable on case-preserving
// filesystems.
func UniquePath(dest string) (string, error) {
	dir := filepath.Dir(dest)
	base := filepath.Base(dest)

	taken, err := lowercaseNames(dir)
	if err != nil {
		return "", err
	}
	if !taken[strings.ToLower(base)] {
		return dest, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !taken[strings.ToLower(candidate)] {
			return filepath.Join(dir, candidate), nil
		}
	}
}

func lowercaseNames(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[strings.ToLower(e.Name())] = true
	}
	return names, nil
}

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst, creating parent directories as needed.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	return WriteFile(dst, data)
}
