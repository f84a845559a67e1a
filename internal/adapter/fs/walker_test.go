package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0644))
}

func TestResolvePlainPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	touch(t, path)

	files, err := NewResolver().Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}

func TestResolveMissingPath(t *testing.T) {
	files, err := NewResolver().Resolve(filepath.Join(t.TempDir(), "nope.csv"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestResolveGlob(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.csv"))
	touch(t, filepath.Join(dir, "a.csv"))
	touch(t, filepath.Join(dir, "nested", "c.csv"))
	touch(t, filepath.Join(dir, "skip", "d.csv"))
	touch(t, filepath.Join(dir, "notes.txt"))

	r := NewResolver(filepath.Join(dir, "skip", "**"))
	files, err := r.Resolve(filepath.Join(dir, "**", "*.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.csv"),
		filepath.Join(dir, "b.csv"),
		filepath.Join(dir, "nested", "c.csv"),
	}, files)
}

func TestResolveDirectory(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "one.csv"))
	touch(t, filepath.Join(dir, "two.txt"))

	files, err := NewResolver().Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "one.csv")}, files)
}
