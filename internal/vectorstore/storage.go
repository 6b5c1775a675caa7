package vectorstore

import (
	"context"

	"mitey/internal/domain"
)

// Index is a loaded, read-only build that answers nearest-neighbour queries.
type Index interface {
	BuildID() string
	Model() string
	Dimension() int
	Manifest() domain.Manifest
	Len() int
	// Search returns at most k records ordered by non-decreasing cosine
	// distance, ties broken by insertion order. k must be at least 1.
	Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error)
}

// Storage persists whole builds and loads them back. Persist replaces the
// previous build atomically; Load reports domain.ErrIndexNotFound or
// domain.ErrIndexCorrupt.
type Storage interface {
	Persist(ctx context.Context, snap *domain.Snapshot) error
	Load(ctx context.Context) (Index, error)
	Close() error
}
