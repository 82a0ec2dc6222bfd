// Package retrieval implements the graph traversal primitives shared by
// the search strategies: semantic entity mapping, relationship neighborhood
// expansion and ranking, claim and text-unit collection, and community
// selection.
//
// All functions are pure reads over an immutable model.Graph. Transient
// sort keys (match counts, entity order, link counts) live in the returned
// structs, never on the shared records.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/vectorstore"
)

// DefaultOversample is the candidate multiplier for semantic entity
// mapping. Oversampling absorbs candidates lost to exclusion filters and
// dangling vector-store ids.
const DefaultOversample = 2

// MapOptions tunes MapQueryToEntities.
type MapOptions struct {
	// Oversample multiplies k for the vector search. Zero means
	// DefaultOversample.
	Oversample int

	// IncludeNames forces entities in by title, ahead of semantic hits.
	IncludeNames []string

	// ExcludeNames drops semantic hits by title.
	ExcludeNames []string
}

// MapQueryToEntities resolves a query to the k most relevant entities.
//
// The query is embedded and matched against the entity description
// collection; hits are resolved to full entities by id, filtered by
// ExcludeNames, and unioned with IncludeNames entities (which come first).
// An empty query skips the vector store and returns the top k entities by
// rank descending, title ascending.
func MapQueryToEntities(ctx context.Context, g *model.Graph, store vectorstore.Store, embedder vectorstore.Embedder, query string, k int, opts MapOptions) ([]*model.Entity, error) {
	if k <= 0 {
		return nil, nil
	}
	if query == "" {
		return TopEntitiesByRank(g, k), nil
	}

	oversample := opts.Oversample
	if oversample <= 0 {
		oversample = DefaultOversample
	}

	hits, err := vectorstore.SimilarByText(ctx, store, embedder, query, k*oversample)
	if err != nil {
		return nil, fmt.Errorf("mapping query to entities: %w", err)
	}

	excluded := make(map[string]bool, len(opts.ExcludeNames))
	for _, name := range opts.ExcludeNames {
		excluded[name] = true
	}

	seen := make(map[string]bool, k)
	selected := make([]*model.Entity, 0, k)
	for _, name := range opts.IncludeNames {
		e, ok := g.EntityByTitle(name)
		if !ok || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		selected = append(selected, e)
	}

	for _, hit := range hits {
		if len(selected) >= k {
			break
		}
		e, ok := g.EntityByID(hit.ID)
		if !ok || seen[e.ID] || excluded[e.Title] {
			continue
		}
		seen[e.ID] = true
		selected = append(selected, e)
	}
	return selected, nil
}

// TopEntitiesByRank returns the k highest-ranked entities, rank descending
// with title-ascending tie-breaks.
func TopEntitiesByRank(g *model.Graph, k int) []*model.Entity {
	all := g.Entities()
	out := make([]*model.Entity, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Title < out[j].Title
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// CovariatesFor returns the claims attached to the selected entities, in
// entity order then load order.
func CovariatesFor(g *model.Graph, selected []*model.Entity) []*model.Covariate {
	var out []*model.Covariate
	for _, e := range selected {
		out = append(out, g.CovariatesForSubject(e.Title)...)
	}
	return out
}
