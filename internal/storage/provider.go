// Package storage abstracts the image tree the indexer reads from and writes
// to, and the object stores artifacts are published to.
package storage

import (
	"context"

	"github.com/starford/anndex/internal/models"
)

// Provider is the interface for image tree operations. An image tree holds
// one directory per module; paths inside a module use forward slashes.
type Provider interface {
	// Modules returns the module names present in the tree, sorted.
	Modules() ([]string, error)
	// List returns every resource of module, sorted by path. A missing module
	// fails with apperr.ErrNotFound.
	List(module string) ([]models.Resource, error)
	// Read returns the raw bytes of path inside module.
	Read(module, path string) ([]byte, error)
	// Write atomically writes content to path inside module.
	Write(module, path string, content []byte) error
}

// Sink receives published artifacts.
type Sink interface {
	Publish(ctx context.Context, name string, content []byte) error
}
