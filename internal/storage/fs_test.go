package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/checksum"
)

func tempImage(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, false)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempImage(t)
	content := []byte{0xCA, 0xFE, 0xBA, 0xBE}
	if err := s.Write("app", "com/acme/Widget.class", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("app", "com/acme/Widget.class")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %x", got)
	}
}

func TestRead_Missing(t *testing.T) {
	s := tempImage(t)
	if _, err := s.Read("app", "nope.class"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestModules(t *testing.T) {
	s := tempImage(t)
	_ = s.Write("zeta", "a.class", []byte("z"))
	_ = s.Write("alpha", "b.class", []byte("a"))
	_ = os.WriteFile(filepath.Join(s.Root(), "loose.txt"), []byte("x"), 0o644)

	mods, err := s.Modules()
	if err != nil {
		t.Fatalf("Modules: %v", err)
	}
	if len(mods) != 2 || mods[0] != "alpha" || mods[1] != "zeta" {
		t.Errorf("Modules = %v, want [alpha zeta]", mods)
	}
}

func TestList(t *testing.T) {
	s := tempImage(t)
	_ = s.Write("app", "com/b/B.class", []byte("b"))
	_ = s.Write("app", "com/a/A.class", []byte("a"))
	_ = s.Write("app", "META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\n"))

	items, err := s.List("app")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"META-INF/MANIFEST.MF", "com/a/A.class", "com/b/B.class"}
	if len(items) != len(want) {
		t.Fatalf("len = %d, want %d", len(items), len(want))
	}
	for i, p := range want {
		if items[i].Path != p {
			t.Errorf("items[%d] = %s, want %s", i, items[i].Path, p)
		}
		if items[i].Module != "app" {
			t.Errorf("module = %s", items[i].Module)
		}
	}
	if items[1].Checksum != checksum.Sum([]byte("a")) {
		t.Errorf("checksum = %s", items[1].Checksum)
	}
	if !items[1].IsClass() || items[0].IsClass() {
		t.Error("IsClass mismatch")
	}
}

func TestList_MissingModule(t *testing.T) {
	s := tempImage(t)
	if _, err := s.List("ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempImage(t)

	cases := []struct{ module, path string }{
		{"app", "../../etc/passwd"},
		{"app", "../other/x.class"},
		{"..", "x.class"},
		{"a/b", "x.class"},
		{"", "x.class"},
	}
	for _, c := range cases {
		if _, err := s.Read(c.module, c.path); err == nil {
			t.Errorf("expected error for %s/%s", c.module, c.path)
		}
		if err := s.Write(c.module, c.path, []byte("x")); err == nil {
			t.Errorf("expected error for write to %s/%s", c.module, c.path)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempImage(t)
	_ = s.Write("app", "META-INF/jandex.idx", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("app", "META-INF/jandex.idx", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("app", "META-INF/jandex.idx")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.Root(), "app", "META-INF", ".anndex-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"), false)
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_Create(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "image")
	s, err := NewFS(dir, true)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if s.Root() != dir {
		t.Errorf("Root = %s, want %s", s.Root(), dir)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "anndex-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name(), false)
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
