package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/vec/search"

	"mitey/internal/domain"
	"mitey/internal/vectorstore"
)

// Index is a brute-force cosine index over one build.
type Index struct {
	snap *domain.Snapshot
}

// NewIndex wraps a snapshot; records must already be in Seq order.
func NewIndex(snap *domain.Snapshot) *Index {
	return &Index{snap: snap}
}

func (x *Index) BuildID() string { return x.snap.BuildID }
func (x *Index) Model() string { return x.snap.Model }
func (x *Index) Dimension() int { return x.snap.Dimension }
func (x *Index) Manifest() domain.Manifest { return x.snap.Manifest }
func (x *Index) Len() int { return len(x.snap.Records) }
func (x *Index) Records() []domain.Record { return x.snap.Records }

func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrInvalidInput, k)
	}
	if len(x.snap.Records) > 0 && len(vector) != x.snap.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", domain.ErrIndexIncompatible, len(vector), x.snap.Dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := search.Float32s(vector)
	zero := q.Magnitude() == 0
	dists := make([]float64, len(x.snap.Records))
	for i, r := range x.snap.Records {
		dists[i] = cosineDistance(q, zero, r.Vector)
	}
	order := make([]int, len(dists))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dists[order[a]] < dists[order[b]]
	})

	n := min(k, len(order))
	results := make([]domain.SearchResult, n)
	for i := 0; i < n; i++ {
		j := order[i]
		results[i] = domain.SearchResult{
			Record:   x.snap.Records[j],
			Distance: dists[j],
			Score:    1 - dists[j],
		}
	}
	return results, nil
}

// cosineDistance treats a zero vector as orthogonal to everything.
func cosineDistance(q search.Float32s, zeroQuery bool, v []float32) float64 {
	if zeroQuery || search.Float32s(v).Magnitude() == 0 {
		return 1
	}
	return float64(q.CosineDistance(v))
}

// Storage keeps the latest build in process memory. It is used when no
// on-disk index is wanted and as a test double for the persistent stores.
type Storage struct {
	mu   sync.RWMutex
	snap *domain.Snapshot
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Persist(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", domain.ErrInvalidInput)
	}
	cp := *snap
	cp.Manifest = append(domain.Manifest(nil), snap.Manifest...)
	cp.Records = append([]domain.Record(nil), snap.Records...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &cp
	return nil
}

func (s *Storage) Load(_ context.Context) (vectorstore.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, fmt.Errorf("%w: nothing has been indexed in this process", domain.ErrIndexNotFound)
	}
	return NewIndex(s.snap), nil
}

func (s *Storage) Close() error { return nil }
