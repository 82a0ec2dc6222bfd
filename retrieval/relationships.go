package retrieval

import (
	"sort"
	"strconv"

	"github.com/brunobiangulo/graphrag/model"
)

// InNetworkRelationships returns the relationships with both endpoints in
// the selected set, in load order.
func InNetworkRelationships(g *model.Graph, selected []*model.Entity) []*model.Relationship {
	titles := titleSet(selected)
	var out []*model.Relationship
	for _, r := range g.Relationships() {
		if titles[r.Source] && titles[r.Target] {
			out = append(out, r)
		}
	}
	return out
}

// OutNetworkRelationships returns the relationships with exactly one
// endpoint in the selected set, in load order.
func OutNetworkRelationships(g *model.Graph, selected []*model.Entity) []*model.Relationship {
	titles := titleSet(selected)
	var out []*model.Relationship
	for _, r := range g.Relationships() {
		if titles[r.Source] != titles[r.Target] {
			out = append(out, r)
		}
	}
	return out
}

// RankRelationships sorts rels in place by descending salience and returns
// the sort key used per relationship, parallel to rels.
//
// The key is resolved per relationship: an integer attribute named attr
// when present, the edge weight when attr is "weight", and the combined
// endpoint rank otherwise.
func RankRelationships(g *model.Graph, rels []*model.Relationship, attr string) []float64 {
	keys := make(map[*model.Relationship]float64, len(rels))
	for _, r := range rels {
		keys[r] = relationshipKey(g, r, attr)
	}
	sort.SliceStable(rels, func(i, j int) bool {
		return keys[rels[i]] > keys[rels[j]]
	})
	out := make([]float64, len(rels))
	for i, r := range rels {
		out[i] = keys[r]
	}
	return out
}

func relationshipKey(g *model.Graph, r *model.Relationship, attr string) float64 {
	if v, ok := r.Attributes[attr]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return float64(n)
		}
	}
	if attr == "weight" {
		return r.Weight
	}
	combined := 0
	if src, ok := g.EntityByTitle(r.Source); ok {
		combined += src.Rank
	}
	if dst, ok := g.EntityByTitle(r.Target); ok {
		combined += dst.Rank
	}
	return float64(combined)
}

// RankOutNetwork orders out-network relationships by mutual linkage: for
// each outside entity, the count of distinct selected entities it links to,
// then the attr key. At most topK * len(selected) relationships are
// returned.
func RankOutNetwork(g *model.Graph, selected []*model.Entity, out []*model.Relationship, attr string, topK int) []*model.Relationship {
	titles := titleSet(selected)

	// links[title] = distinct selected entities the outside entity touches.
	linkedTo := make(map[string]map[string]bool)
	for _, r := range out {
		outside, inside := r.Target, r.Source
		if titles[r.Target] {
			outside, inside = r.Source, r.Target
		}
		if linkedTo[outside] == nil {
			linkedTo[outside] = make(map[string]bool)
		}
		linkedTo[outside][inside] = true
	}

	keys := make(map[*model.Relationship]float64, len(out))
	links := make(map[*model.Relationship]int, len(out))
	for _, r := range out {
		outside := r.Target
		if titles[r.Target] {
			outside = r.Source
		}
		links[r] = len(linkedTo[outside])
		keys[r] = relationshipKey(g, r, attr)
	}

	ranked := make([]*model.Relationship, len(out))
	copy(ranked, out)
	sort.SliceStable(ranked, func(i, j int) bool {
		if links[ranked[i]] != links[ranked[j]] {
			return links[ranked[i]] > links[ranked[j]]
		}
		return keys[ranked[i]] > keys[ranked[j]]
	})

	limit := topK * len(selected)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func titleSet(entities []*model.Entity) map[string]bool {
	set := make(map[string]bool, len(entities))
	for _, e := range entities {
		set[e.Title] = true
	}
	return set
}
