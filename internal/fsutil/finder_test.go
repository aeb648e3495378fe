package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.hcl"))
	writeFile(t, filepath.Join(root, "a.json"))
	writeFile(t, filepath.Join(root, "nested", "c.hcl"))
	writeFile(t, filepath.Join(root, "notes.txt"))

	files, err := FindFilesByExtension(root, ".hcl", ".json")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.json"),
		filepath.Join(root, "b.hcl"),
		filepath.Join(root, "nested", "c.hcl"),
	}, files)

	assert.Panics(t, func() { _, _ = FindFilesByExtension(root) })
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	form := filepath.Join(root, "form.hcl")
	extra := filepath.Join(root, "dir", "extra.hcl")
	odd := filepath.Join(root, "form.conf")
	writeFile(t, form)
	writeFile(t, extra)
	writeFile(t, odd)

	files, err := CollectFiles([]string{odd, form, filepath.Join(root, "dir"), form}, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{odd, form, extra}, files)

	_, err = CollectFiles([]string{filepath.Join(root, "missing.hcl")}, ".hcl")
	assert.ErrorContains(t, err, "does not exist")
}
