package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/checksum"
	"github.com/starford/anndex/internal/models"
)

// FS implements Provider backed by a directory on the local file system.
type FS struct {
	root string // absolute path to the image root
}

// NewFS creates a new FS provider rooted at the given directory.
// When create is set a missing root is created; otherwise it must exist.
func NewFS(root string, create bool) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if create {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create root: %w", err)
		}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute image root.
func (f *FS) Root() string { return f.root }

// Dir returns the absolute directory of module.
func (f *FS) Dir(module string) (string, error) {
	return f.safePath(module, "")
}

// safePath resolves module and path against the image root and rejects any
// result that escapes it (directory traversal).
func (f *FS) safePath(module, rel string) (string, error) {
	if module == "" || strings.ContainsAny(module, `/\`) || module == "." || module == ".." {
		return "", fmt.Errorf("storage: invalid module name %q", module)
	}
	base := filepath.Join(f.root, module)
	if rel == "" {
		return base, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(base, cleaned)
	if !strings.HasPrefix(abs, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes module %s: %s", module, rel)
	}
	return abs, nil
}

// Modules lists the top-level directories of the image.
func (f *FS) Modules() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: modules: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// List walks module and returns metadata for every file in it.
func (f *FS) List(module string) ([]models.Resource, error) {
	base, err := f.safePath(module, "")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(base)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("storage: module %s: %w", module, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: stat module %s: %w", module, err)
	}

	var out []models.Resource
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".anndex-tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := checksum.File(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(base, p)
		out = append(out, models.Resource{
			Module:    module,
			Path:      filepath.ToSlash(rel),
			Checksum:  sum,
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", module, err)
	}
	slices.SortFunc(out, func(a, b models.Resource) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Read returns the raw bytes of a resource.
func (f *FS) Read(module, path string) ([]byte, error) {
	abs, err := f.safePath(module, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: read /%s/%s: %w", module, path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read /%s/%s: %w", module, path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(module, path string, content []byte) error {
	abs, err := f.safePath(module, path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".anndex-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
