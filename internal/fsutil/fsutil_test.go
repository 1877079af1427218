package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileDurable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build", "node", "index.js")

	require.NoError(t, WriteFileDurable(path, []byte("first"), 0o644))
	require.NoError(t, WriteFileDurable(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFindDirs(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"src/lib", "node_modules/x", "src/.git"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}

	dirs, err := FindDirs(root, "node_modules", ".git")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "src"),
		filepath.Join(root, "src", "lib"),
	}, dirs)
}
