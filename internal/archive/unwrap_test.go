package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func buildZip(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestUnwrapPassesThroughNonZip(t *testing.T) {
	raw := []byte("%PDF-1.4 not an archive")
	out, name, err := Unwrap(raw, "doc.pdf", testLogger())
	require.NoError(t, err)
	assert.Equal(t, raw, out)
	assert.Equal(t, "doc.pdf", name)
}

func TestUnwrapExactMatchWins(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"other.pdf":  []byte("wrong"),
		"wanted.pdf": []byte("right"),
	})
	out, name, err := Unwrap(data, "wanted.pdf", testLogger())
	require.NoError(t, err)
	assert.Equal(t, []byte("right"), out)
	assert.Equal(t, "wanted.pdf", name)
}

func TestUnwrapFallsBackToFirstPdf(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range []struct {
		name string
		data string
	}{
		{"readme.txt", "notes"},
		{"scan.pdf", "the document"},
		{"extra.pdf", "another"},
	} {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	out, name, err := Unwrap(buf.Bytes(), "missing.pdf", testLogger())
	require.NoError(t, err)
	assert.Equal(t, []byte("the document"), out)
	assert.Equal(t, "scan.pdf", name)
}

func TestUnwrapFallsBackToLargestMember(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"small.dat": []byte("x"),
		"big.dat":   bytes.Repeat([]byte("y"), 100),
	})
	out, name, err := Unwrap(data, "missing.pdf", testLogger())
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("y"), 100), out)
	assert.Equal(t, "big.dat", name)
}

func TestUnwrapEmptyZipKeepsOriginalBytes(t *testing.T) {
	// Directory entries only, so there is no payload to choose.
	data := buildZip(t, map[string][]byte{"folder/": nil})
	out, name, err := Unwrap(data, "doc.pdf", testLogger())
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "doc.pdf", name)
}

func TestUnwrapCorruptZipKeepsOriginalBytes(t *testing.T) {
	data := append([]byte("PK\x03\x04"), []byte("garbage after signature")...)
	out, name, err := Unwrap(data, "doc.pdf", testLogger())
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, "doc.pdf", name)
}

func TestUnwrapMemberInSubdirectory(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"nested/dir/doc.pdf": []byte("payload"),
	})
	out, name, err := Unwrap(data, "doc.pdf", testLogger())
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), out)
	assert.Equal(t, "doc.pdf", name)
}

func TestFixTree(t *testing.T) {
	root := t.TempDir()

	wrapped := buildZip(t, map[string][]byte{"inner.pdf": []byte("document body")})
	plain := []byte("%PDF-1.4 already fine")
	sidecar := []byte(`{"meta":true}`)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "wrapped.pdf"), wrapped, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.pdf"), plain, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.pdf.json"), sidecar, 0o644))

	res, err := FixTree(context.Background(), root, false, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Repaired)
	assert.Equal(t, 1, res.Skipped)

	fixed, err := os.ReadFile(filepath.Join(root, "sub", "wrapped.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("document body"), fixed)

	untouched, err := os.ReadFile(filepath.Join(root, "plain.pdf"))
	require.NoError(t, err)
	assert.Equal(t, plain, untouched)
}

func TestFixTreeDryRun(t *testing.T) {
	root := t.TempDir()
	wrapped := buildZip(t, map[string][]byte{"inner.pdf": []byte("document body")})
	target := filepath.Join(root, "wrapped.pdf")
	require.NoError(t, os.WriteFile(target, wrapped, 0o644))

	res, err := FixTree(context.Background(), root, true, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Repaired)

	still, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, wrapped, still)
}
