package retrieval

import (
	"context"
	"testing"

	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/vectorstore"
)

// testGraph builds a small star: Alice links to Bob and Carol (selected
// neighborhood), Bob links out to Dave.
func testGraph(t *testing.T) *model.Graph {
	t.Helper()
	g, err := model.NewGraph(model.Input{
		Entities: []*model.Entity{
			{ID: "e1", ShortID: "1", Title: "Alice", Rank: 3,
				DescriptionEmbedding: []float32{1, 0},
				CommunityIDs:         []string{"c1"},
				TextUnitIDs:          []string{"t1", "t2"}},
			{ID: "e2", ShortID: "2", Title: "Bob", Rank: 2,
				DescriptionEmbedding: []float32{0, 1},
				CommunityIDs:         []string{"c1"},
				TextUnitIDs:          []string{"t1"}},
			{ID: "e3", ShortID: "3", Title: "Carol", Rank: 2,
				DescriptionEmbedding: []float32{1, 1},
				CommunityIDs:         []string{"c2"},
				TextUnitIDs:          []string{"t3"}},
			{ID: "e4", ShortID: "4", Title: "Dave", Rank: 1,
				DescriptionEmbedding: []float32{-1, 0}},
		},
		Relationships: []*model.Relationship{
			{ID: "r1", ShortID: "1", Source: "Alice", Target: "Bob", Weight: 0.9, TextUnitIDs: []string{"t1"}},
			{ID: "r2", ShortID: "2", Source: "Alice", Target: "Carol", Weight: 0.5},
			{ID: "r3", ShortID: "3", Source: "Bob", Target: "Dave", Weight: 0.7},
		},
		Covariates: []*model.Covariate{
			{ID: "cv1", ShortID: "1", SubjectID: "Alice", Type: "claim"},
		},
		TextUnits: []*model.TextUnit{
			{ID: "t1", ShortID: "1", Text: "alice met bob"},
			{ID: "t2", ShortID: "2", Text: "alice alone"},
			{ID: "t3", ShortID: "3", Text: "carol"},
		},
		Communities: []*model.Community{
			{ID: "c1", Level: 0},
			{ID: "c2", Level: 0},
		},
		Reports: []*model.CommunityReport{
			{ID: "rep1", ShortID: "1", CommunityID: "c1", Rank: 5},
			{ID: "rep2", ShortID: "2", CommunityID: "c2", Rank: 9},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func entityStore(t *testing.T, g *model.Graph) *vectorstore.Memory {
	t.Helper()
	m := vectorstore.NewMemory(2)
	for _, e := range g.Entities() {
		if err := m.Add(context.Background(), e.ID, e.DescriptionEmbedding); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

type fixedEmbedder []float32

func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f
	}
	return out, nil
}

func titles(entities []*model.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Title
	}
	return out
}

func TestMapQueryToEntities(t *testing.T) {
	g := testGraph(t)
	store := entityStore(t, g)
	embedder := fixedEmbedder{1, 0} // closest to Alice, then Carol

	got, err := MapQueryToEntities(context.Background(), g, store, embedder, "who is alice", 2, MapOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Alice", "Carol"}
	if len(got) != 2 || got[0].Title != want[0] || got[1].Title != want[1] {
		t.Errorf("mapped = %v, want %v", titles(got), want)
	}
}

func TestMapQueryIncludeExclude(t *testing.T) {
	g := testGraph(t)
	store := entityStore(t, g)
	embedder := fixedEmbedder{1, 0}

	got, err := MapQueryToEntities(context.Background(), g, store, embedder, "q", 2, MapOptions{
		IncludeNames: []string{"Dave"},
		ExcludeNames: []string{"Alice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Dave forced first; Alice excluded; Carol is the best remaining hit.
	want := []string{"Dave", "Carol"}
	if len(got) != 2 || got[0].Title != want[0] || got[1].Title != want[1] {
		t.Errorf("mapped = %v, want %v", titles(got), want)
	}
}

// An empty query falls back to rank ordering with title tie-breaks.
func TestMapQueryEmpty(t *testing.T) {
	g := testGraph(t)
	got, err := MapQueryToEntities(context.Background(), g, nil, nil, "", 3, MapOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Alice", "Bob", "Carol"}
	if len(got) != 3 {
		t.Fatalf("mapped %d entities, want 3", len(got))
	}
	for i := range want {
		if got[i].Title != want[i] {
			t.Errorf("mapped = %v, want %v", titles(got), want)
			break
		}
	}
}

func selectedEntities(g *model.Graph, names ...string) []*model.Entity {
	var out []*model.Entity
	for _, n := range names {
		if e, ok := g.EntityByTitle(n); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestNetworkSplit(t *testing.T) {
	g := testGraph(t)
	selected := selectedEntities(g, "Alice", "Bob")

	in := InNetworkRelationships(g, selected)
	if len(in) != 1 || in[0].ID != "r1" {
		t.Errorf("in-network = %v, want [r1]", in)
	}

	out := OutNetworkRelationships(g, selected)
	if len(out) != 2 {
		t.Fatalf("out-network = %d rels, want 2", len(out))
	}
}

func TestRankRelationshipsByWeight(t *testing.T) {
	g := testGraph(t)
	rels := []*model.Relationship{}
	for _, r := range g.Relationships() {
		rels = append(rels, r)
	}
	RankRelationships(g, rels, "weight")
	// Weights 0.9, 0.7, 0.5.
	want := []string{"r1", "r3", "r2"}
	for i := range want {
		if rels[i].ID != want[i] {
			t.Fatalf("order = %v, want %v", rels, want)
		}
	}
}

func TestRankRelationshipsCombinedRank(t *testing.T) {
	g := testGraph(t)
	rels := []*model.Relationship{}
	for _, r := range g.Relationships() {
		rels = append(rels, r)
	}
	keys := RankRelationships(g, rels, "rank")
	// Combined endpoint ranks: r1 Alice+Bob=5, r2 Alice+Carol=5, r3 Bob+Dave=3.
	if keys[0] != 5 || keys[2] != 3 {
		t.Errorf("keys = %v, want [5 5 3]", keys)
	}
	if rels[2].ID != "r3" {
		t.Errorf("last = %s, want r3", rels[2].ID)
	}
}

func TestRankOutNetworkCap(t *testing.T) {
	g := testGraph(t)
	selected := selectedEntities(g, "Alice")
	out := OutNetworkRelationships(g, selected)
	if len(out) != 2 {
		t.Fatalf("out-network = %d, want 2", len(out))
	}

	ranked := RankOutNetwork(g, selected, out, "weight", 1)
	// Cap = topK * |selected| = 1.
	if len(ranked) != 1 {
		t.Fatalf("ranked = %d rels, want 1", len(ranked))
	}
	// Bob and Carol each link to one selected entity; tie resolved by
	// weight (r1 0.9 over r2 0.5).
	if ranked[0].ID != "r1" {
		t.Errorf("top out-network = %s, want r1", ranked[0].ID)
	}
}

func TestTextUnitsOrdering(t *testing.T) {
	g := testGraph(t)
	selected := selectedEntities(g, "Alice", "Bob")

	units := TextUnitsFor(g, selected)
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2 (t1, t2)", len(units))
	}
	// Both belong to Alice (order 0); t1 is referenced by r1 so it sorts
	// first on relationship count.
	if units[0].Unit.ID != "t1" || units[1].Unit.ID != "t2" {
		t.Errorf("order = %s, %s, want t1, t2", units[0].Unit.ID, units[1].Unit.ID)
	}
	if units[0].NumRelationships != 1 {
		t.Errorf("t1 relationship count = %d, want 1", units[0].NumRelationships)
	}
}

func TestCommunitiesForSort(t *testing.T) {
	g := testGraph(t)
	selected := selectedEntities(g, "Alice", "Bob", "Carol")

	matched := CommunitiesFor(g, selected)
	if len(matched) != 2 {
		t.Fatalf("matched = %d communities, want 2", len(matched))
	}
	// c1 has two selected members, c2 one; matches dominate rank.
	if matched[0].Report.CommunityID != "c1" || matched[0].Matches != 2 {
		t.Errorf("first = %s (%d matches), want c1 (2)", matched[0].Report.CommunityID, matched[0].Matches)
	}
	if matched[1].Report.CommunityID != "c2" {
		t.Errorf("second = %s, want c2", matched[1].Report.CommunityID)
	}
}

func TestCommunityWeights(t *testing.T) {
	g := testGraph(t)
	weights := CommunityWeights(g, g.ReportsInScope(), g.Entities())
	// c1 members Alice and Bob reference t1 and t2 -> 2 distinct units.
	if weights["c1"] != 2 {
		t.Errorf("weight c1 = %v, want 2", weights["c1"])
	}
	if weights["c2"] != 1 {
		t.Errorf("weight c2 = %v, want 1", weights["c2"])
	}
}

func TestCovariatesFor(t *testing.T) {
	g := testGraph(t)
	covs := CovariatesFor(g, selectedEntities(g, "Alice", "Bob"))
	if len(covs) != 1 || covs[0].ID != "cv1" {
		t.Errorf("covariates = %v, want [cv1]", covs)
	}
}
