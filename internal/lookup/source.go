package lookup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/storage"
)

// Source supplies artifact bytes.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// FileSource reads the artifact from a local file.
type FileSource struct {
	Path string
}

func (f FileSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", f.Path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", f.Path, err)
	}
	return data, nil
}

func (f FileSource) String() string { return f.Path }

// ObjectSource fetches the artifact from an object store.
type ObjectSource struct {
	Store *storage.S3
	Name  string
}

func (o ObjectSource) Fetch(ctx context.Context) ([]byte, error) {
	return o.Store.Fetch(ctx, o.Name)
}

func (o ObjectSource) String() string { return "s3:" + o.Store.Key(o.Name) }
