// Package testutil provides shared test helpers: a class-file assembler and
// temporary image trees and catalog databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Image writes files into a temporary image root. Keys are
// "<module>/<path>" with forward slashes.
func Image(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for key, data := range files {
		WriteFile(t, root, key, data)
	}
	return root
}

// WriteFile writes one "<module>/<path>" entry below root.
func WriteFile(t *testing.T, root, key string, data []byte) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// TempDB returns a path for a temporary SQLite database that is removed
// when the test ends.
func TempDB(t *testing.T) string {
	t.Helper()
	dbFile, err := os.CreateTemp("", "anndex-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})
	return dbFile.Name()
}
