// Package vectorstore defines the k-NN search interface over the index
// embedding collections and a deterministic in-memory implementation.
//
// Three collections exist per index: entity descriptions, text-unit
// bodies, and community report full contents (drift search only). All
// backends report scores using the 1 + cosine convention in [0,2],
// higher is better, so rankings are comparable across backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Collection names shared by all backends.
const (
	CollectionEntityDescription    = "entity_description"
	CollectionTextUnit             = "text_unit"
	CollectionCommunityFullContent = "community_full_content"
)

var (
	// ErrDimensionMismatch is returned when a query or inserted vector
	// does not match the collection dimension.
	ErrDimensionMismatch = errors.New("graphrag: embedding dimension mismatch")

	// ErrUnavailable is returned when the backing store cannot be
	// reached after the client retry policy is exhausted.
	ErrUnavailable = errors.New("graphrag: vector store unavailable")
)

// Result is one k-NN hit.
type Result struct {
	ID    string
	Score float64
}

// SearchOption adjusts a single Similar call. Options are per-call state,
// never stored on the Store, so concurrent searches with different
// filters are safe.
type SearchOption func(*SearchConfig)

// SearchConfig is the resolved option set for one search.
type SearchConfig struct {
	// FilterIDs restricts results to the given ids when non-nil.
	FilterIDs map[string]bool
}

// WithIDFilter restricts the search to the given candidate ids.
func WithIDFilter(ids []string) SearchOption {
	return func(c *SearchConfig) {
		c.FilterIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			c.FilterIDs[id] = true
		}
	}
}

// ApplyOptions resolves options into a SearchConfig. Exposed for backend
// implementations.
func ApplyOptions(opts []SearchOption) SearchConfig {
	var cfg SearchConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Store is a read-only k-NN index over one embedding collection.
// Implementations must be safe for concurrent reads.
type Store interface {
	// Similar returns the k nearest entries to vector, ordered by score
	// descending with id-ascending tie-breaks.
	Similar(ctx context.Context, vector []float32, k int, opts ...SearchOption) ([]Result, error)
}

// Writer is the optional load-time interface for backends that are
// populated from the in-memory tables at engine setup.
type Writer interface {
	Add(ctx context.Context, id string, vector []float32) error
}

// Embedder turns text into a vector. llm.Provider satisfies this.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SimilarByText embeds text and searches s with the resulting vector.
func SimilarByText(ctx context.Context, s Store, embedder Embedder, text string, k int, opts ...SearchOption) ([]Result, error) {
	vecs, err := embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding query: empty embedding returned")
	}
	return s.Similar(ctx, vecs[0], k, opts...)
}
