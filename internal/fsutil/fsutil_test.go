package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	first, err := UniquePath(filepath.Join(dir, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc.pdf"), first)
	require.NoError(t, os.WriteFile(first, []byte("a"), 0o644))

	second, err := UniquePath(filepath.Join(dir, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc (1).pdf"), second)
	require.NoError(t, os.WriteFile(second, []byte("b"), 0o644))

	third, err := UniquePath(filepath.Join(dir, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc (2).pdf"), third)
}

func TestUniquePathCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DOC.PDF"), []byte("a"), 0o644))

	got, err := UniquePath(filepath.Join(dir, "doc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc (1).pdf"), got)
}

func TestUniquePathMissingDir(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "not", "yet", "doc.pdf")
	got, err := UniquePath(dest)
	require.NoError(t, err)
	assert.Equal(t, dest, got)
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.txt")
	require.NoError(t, WriteFile(path, []byte("hello")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}
