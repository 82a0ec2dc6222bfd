package model

import (
	"fmt"
	"sort"
)

// Input bundles the six tabular artifacts a Graph is built from.
type Input struct {
	Entities      []*Entity
	Relationships []*Relationship
	Covariates    []*Covariate
	TextUnits     []*TextUnit
	Communities   []*Community
	Reports       []*CommunityReport
}

// Graph is the immutable, indexed view of one knowledge graph index.
//
// Entities are indexed both by id (the vector-store join key) and by title
// (the relationship/covariate join key). Both maps are built once here;
// runtime mutation is forbidden.
type Graph struct {
	entities      []*Entity
	relationships []*Relationship
	covariates    []*Covariate
	textUnits     []*TextUnit
	communities   []*Community
	reports       []*CommunityReport

	entityByID    map[string]*Entity
	entityByTitle map[string]*Entity
	textUnitByID  map[string]*TextUnit
	communityByID map[string]*Community

	covariatesBySubject map[string][]*Covariate

	// reportByCommunity keeps one report per community: the deepest
	// (highest level) report in scope supersedes shallower ones.
	reportByCommunity map[string]*CommunityReport
}

// NewGraph validates and indexes the input tables.
//
// Validation failures are fatal: duplicate entity titles and duplicate
// (community, level) reports return ErrBadData; embedding vectors of
// differing dimension within one logical space return ErrDimensionMismatch.
// Dangling text-unit references are legal and skipped at query time.
func NewGraph(in Input) (*Graph, error) {
	g := &Graph{
		entities:            in.Entities,
		relationships:       in.Relationships,
		covariates:          in.Covariates,
		textUnits:           in.TextUnits,
		communities:         in.Communities,
		reports:             in.Reports,
		entityByID:          make(map[string]*Entity, len(in.Entities)),
		entityByTitle:       make(map[string]*Entity, len(in.Entities)),
		textUnitByID:        make(map[string]*TextUnit, len(in.TextUnits)),
		communityByID:       make(map[string]*Community, len(in.Communities)),
		covariatesBySubject: make(map[string][]*Covariate),
		reportByCommunity:   make(map[string]*CommunityReport, len(in.Reports)),
	}

	if err := checkDims("entity description", entityVectors(in.Entities)); err != nil {
		return nil, err
	}
	if err := checkDims("report content", reportVectors(in.Reports)); err != nil {
		return nil, err
	}

	for _, e := range in.Entities {
		if _, dup := g.entityByID[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %q", ErrBadData, e.ID)
		}
		if _, dup := g.entityByTitle[e.Title]; dup {
			return nil, fmt.Errorf("%w: duplicate entity title %q", ErrBadData, e.Title)
		}
		g.entityByID[e.ID] = e
		g.entityByTitle[e.Title] = e
	}

	for _, u := range in.TextUnits {
		if _, dup := g.textUnitByID[u.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate text unit id %q", ErrBadData, u.ID)
		}
		g.textUnitByID[u.ID] = u
	}

	for _, c := range in.Communities {
		if _, dup := g.communityByID[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate community id %q", ErrBadData, c.ID)
		}
		g.communityByID[c.ID] = c
	}

	for _, cov := range in.Covariates {
		g.covariatesBySubject[cov.SubjectID] = append(g.covariatesBySubject[cov.SubjectID], cov)
	}

	seenReportLevel := make(map[string]map[int]bool)
	for _, r := range in.Reports {
		levels := seenReportLevel[r.CommunityID]
		if levels == nil {
			levels = make(map[int]bool)
			seenReportLevel[r.CommunityID] = levels
		}
		if levels[r.Level] {
			return nil, fmt.Errorf("%w: duplicate report for community %q level %d",
				ErrBadData, r.CommunityID, r.Level)
		}
		levels[r.Level] = true

		if prev, ok := g.reportByCommunity[r.CommunityID]; !ok || r.Level > prev.Level {
			g.reportByCommunity[r.CommunityID] = r
		}
	}

	return g, nil
}

// Entities returns all entities in load order.
func (g *Graph) Entities() []*Entity { return g.entities }

// Relationships returns all relationships in load order.
func (g *Graph) Relationships() []*Relationship { return g.relationships }

// Covariates returns all covariates in load order.
func (g *Graph) Covariates() []*Covariate { return g.covariates }

// TextUnits returns all text units in load order.
func (g *Graph) TextUnits() []*TextUnit { return g.textUnits }

// Communities returns all communities in load order.
func (g *Graph) Communities() []*Community { return g.communities }

// Reports returns all community reports in load order, including every
// level. Most callers want ReportsInScope.
func (g *Graph) Reports() []*CommunityReport { return g.reports }

// ReportsInScope returns one report per community (the deepest level),
// ordered by community id for determinism.
func (g *Graph) ReportsInScope() []*CommunityReport {
	out := make([]*CommunityReport, 0, len(g.reportByCommunity))
	for _, r := range g.reportByCommunity {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommunityID < out[j].CommunityID })
	return out
}

// EntityByID resolves an entity by its opaque id.
func (g *Graph) EntityByID(id string) (*Entity, bool) {
	e, ok := g.entityByID[id]
	return e, ok
}

// EntityByTitle resolves an entity by its title (the relationship join key).
func (g *Graph) EntityByTitle(title string) (*Entity, bool) {
	e, ok := g.entityByTitle[title]
	return e, ok
}

// TextUnitByID resolves a text unit; missing ids are not an error.
func (g *Graph) TextUnitByID(id string) (*TextUnit, bool) {
	u, ok := g.textUnitByID[id]
	return u, ok
}

// CommunityByID resolves a community record.
func (g *Graph) CommunityByID(id string) (*Community, bool) {
	c, ok := g.communityByID[id]
	return c, ok
}

// ReportForCommunity returns the in-scope report for a community, if any.
func (g *Graph) ReportForCommunity(communityID string) (*CommunityReport, bool) {
	r, ok := g.reportByCommunity[communityID]
	return r, ok
}

// CovariatesForSubject returns the claims whose subject is the given
// entity title, in load order.
func (g *Graph) CovariatesForSubject(title string) []*Covariate {
	return g.covariatesBySubject[title]
}

// checkDims verifies that all non-empty vectors in one logical embedding
// space share a dimension.
func checkDims(space string, vectors [][]float32) error {
	dim := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(v)
			continue
		}
		if len(v) != dim {
			return fmt.Errorf("%w: %s space has vectors of dim %d and %d",
				ErrDimensionMismatch, space, dim, len(v))
		}
	}
	return nil
}

func entityVectors(entities []*Entity) [][]float32 {
	out := make([][]float32, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.DescriptionEmbedding)
	}
	return out
}

func reportVectors(reports []*CommunityReport) [][]float32 {
	out := make([][]float32, 0, len(reports)*2)
	for _, r := range reports {
		out = append(out, r.SummaryEmbedding, r.FullContentEmbedding)
	}
	return out
}
