// Package lookup serves queries against the current annotation index. The
// index is swapped atomically on reload, so readers never block.
package lookup

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/codec"
	"github.com/starford/anndex/internal/index"
)

// Stats describes the loaded index.
type Stats struct {
	Source    string    `json:"source"`
	Types     int       `json:"types"`
	Instances int       `json:"instances"`
	Bytes     int       `json:"bytes"`
	Version   string    `json:"version"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// TypeCount is one entry of the type listing.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type snapshot struct {
	idx   *index.Index
	stats Stats
}

// Service holds the current index.
type Service struct {
	src     Source
	current atomic.Pointer[snapshot]
}

// NewService creates a service that reloads from src. src may be nil when
// the index is only ever pushed with Load.
func NewService(src Source) *Service {
	return &Service{src: src}
}

// Load decodes an artifact and makes it current. On error the previous
// index stays in place.
func (s *Service) Load(data []byte, origin string) (Stats, error) {
	x, err := codec.Read(data)
	if err != nil {
		return Stats{}, fmt.Errorf("lookup: load %s: %w", origin, err)
	}
	s.Set(x, len(data), origin)
	return s.current.Load().stats, nil
}

// Set makes an already decoded index current.
func (s *Service) Set(x *index.Index, size int, origin string) {
	major, minor := codec.Version()
	s.current.Store(&snapshot{
		idx: x,
		stats: Stats{
			Source:    origin,
			Types:     len(x.Types()),
			Instances: x.Len(),
			Bytes:     size,
			Version:   fmt.Sprintf("%d.%d", major, minor),
			LoadedAt:  time.Now().UTC(),
		},
	})
}

// Reload fetches the artifact from the source and loads it.
func (s *Service) Reload(ctx context.Context) (Stats, error) {
	if s.src == nil {
		return Stats{}, fmt.Errorf("lookup: reload: no artifact source configured")
	}
	data, err := s.src.Fetch(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("lookup: reload: %w", err)
	}
	return s.Load(data, s.src.String())
}

func (s *Service) snapshot() (*snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperr.ErrNoIndex
	}
	return snap, nil
}

// Index returns the current index.
func (s *Service) Index() (*index.Index, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.idx, nil
}

// Lookup returns every instance of typeName. An unknown type yields an
// empty, non-nil slice.
func (s *Service) Lookup(typeName string) ([]InstanceView, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	found := snap.idx.Lookup(typeName)
	out := make([]InstanceView, len(found))
	for i, in := range found {
		out[i] = NewInstanceView(in)
	}
	return out, nil
}

// Types lists the known annotation types with their instance counts.
func (s *Service) Types() ([]TypeCount, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	types := snap.idx.Types()
	out := make([]TypeCount, len(types))
	for i, t := range types {
		out[i] = TypeCount{Type: t, Count: snap.idx.Count(t)}
	}
	return out, nil
}

// Stats describes the current index.
func (s *Service) Stats() (Stats, error) {
	snap, err := s.snapshot()
	if err != nil {
		return Stats{}, err
	}
	return snap.stats, nil
}
