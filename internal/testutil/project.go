package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// LibrarySource is a small ES module library used by build tests.
const LibrarySource = `import { shout } from "./util.js";

/** Greeting helper. */
export function greet(name) {
  const message = "hello " + name;
  return shout(message);
}

export const version = "1.0.0";
`

// UtilSource is imported by LibrarySource.
const UtilSource = `export function shout(internalMessageValue) {
  return internalMessageValue.toUpperCase() + "!";
}
`

// WriteProject creates a project under a temp dir from relative path -> contents
// and returns its root.
func WriteProject(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
	return root
}

// WriteLibrary creates the default two-module library under src/.
func WriteLibrary(t testing.TB) string {
	t.Helper()
	return WriteProject(t, map[string]string{
		"src/index.js": LibrarySource,
		"src/util.js":  UtilSource,
	})
}

// ReadFile returns the contents of root/rel or fails the test.
func ReadFile(t testing.TB, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

// Exists reports whether root/rel exists.
func Exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}
