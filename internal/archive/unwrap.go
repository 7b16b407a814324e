// Package archive handles the records system's habit of serving documents
// wrapped in ZIP containers, usually with no .zip extension. Detection goes
// by signature, never by name.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// IsZip reports whether data starts with the local-file-header signature.
func IsZip(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// Unwrap returns the payload document for a downloaded artifact. Non-ZIP
// input passes through unchanged. ZIP input yields the bytes and name of the
// best member: an exact match on expectedFilename, else the first .pdf
// member, else the largest member. Empty or unreadable archives fall back to
// the original bytes so nothing is ever lost, only left wrapped.
func Unwrap(data []byte, expectedFilename string, logger *slog.Logger) ([]byte, string, error) {
	if !IsZip(data) {
		return data, expectedFilename, nil
	}

	l := logger.With(slog.String("file", expectedFilename))

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		l.Warn("zip signature present but archive unreadable, keeping original bytes",
			slog.String("error", err.Error()))
		return data, expectedFilename, nil
	}

	member := selectMember(zr.File, expectedFilename)
	if member == nil {
		l.Warn("archive has no file members, keeping original bytes")
		return data, expectedFilename, nil
	}

	rc, err := member.Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening archive member %s: %w", member.Name, err)
	}
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("reading archive member %s: %w", member.Name, err)
	}

	l.Debug("unwrapped archive member",
		slog.String("member", member.Name),
		slog.Int("size", len(payload)))
	return payload, filepath.Base(member.Name), nil
}

// selectMember picks the document to keep from an archive's file members.
func selectMember(files []*zip.File, expectedFilename string) *zip.File {
	var candidates []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, f := range candidates {
		if filepath.Base(f.Name) == expectedFilename {
			return f
		}
	}
	for _, f := range candidates {
		if strings.EqualFold(filepath.Ext(f.Name), ".pdf") {
			return f
		}
	}

	largest := candidates[0]
	for _, f := range candidates[1:] {
		if f.UncompressedSize64 > largest.UncompressedSize64 {
			largest = f
		}
	}
	return largest
}
