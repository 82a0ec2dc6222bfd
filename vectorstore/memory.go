package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is the deterministic in-memory Store used in tests and for
// small indexes. Scores use exact cosine similarity; ties are broken by
// id so repeated searches return identical orderings.
type Memory struct {
	dim int

	mu      sync.RWMutex
	ids     []string
	vectors map[string][]float32
}

// NewMemory creates an empty in-memory collection with a fixed dimension.
func NewMemory(dim int) *Memory {
	return &Memory{dim: dim, vectors: make(map[string][]float32)}
}

// Add inserts or replaces an entry.
func (m *Memory) Add(_ context.Context, id string, vector []float32) error {
	if len(vector) != m.dim {
		return fmt.Errorf("%w: got %d, collection dim %d", ErrDimensionMismatch, len(vector), m.dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vectors[id]; !ok {
		m.ids = append(m.ids, id)
	}
	m.vectors[id] = vector
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Similar implements Store. An empty collection matches nothing
// regardless of the query dimension; an index without embeddings must
// yield empty retrieval, not an error.
func (m *Memory) Similar(_ context.Context, vector []float32, k int, opts ...SearchOption) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	cfg := ApplyOptions(opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.ids) == 0 {
		return nil, nil
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query dim %d, collection dim %d", ErrDimensionMismatch, len(vector), m.dim)
	}

	results := make([]Result, 0, len(m.ids))
	for _, id := range m.ids {
		if cfg.FilterIDs != nil && !cfg.FilterIDs[id] {
			continue
		}
		results = append(results, Result{ID: id, Score: 1 + cosine(vector, m.vectors[id])})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
