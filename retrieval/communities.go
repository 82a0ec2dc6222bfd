package retrieval

import (
	"sort"
	"strconv"

	"github.com/brunobiangulo/graphrag/model"
)

// MatchedReport pairs a community report with its transient match count.
type MatchedReport struct {
	Report *model.CommunityReport

	// Matches counts the selected entities that belong to the community.
	Matches int
}

// CommunitiesFor returns the in-scope report of every community that
// contains at least one selected entity, sorted by (Matches desc,
// Rank desc, community id asc).
func CommunitiesFor(g *model.Graph, selected []*model.Entity) []MatchedReport {
	matches := make(map[string]int)
	for _, e := range selected {
		for _, cid := range e.CommunityIDs {
			matches[cid]++
		}
	}

	out := make([]MatchedReport, 0, len(matches))
	for cid, n := range matches {
		r, ok := g.ReportForCommunity(cid)
		if !ok {
			continue
		}
		out = append(out, MatchedReport{Report: r, Matches: n})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Matches != out[j].Matches {
			return out[i].Matches > out[j].Matches
		}
		if out[i].Report.Rank != out[j].Report.Rank {
			return out[i].Report.Rank > out[j].Report.Rank
		}
		return out[i].Report.CommunityID < out[j].Report.CommunityID
	})
	return out
}

// CommunityWeights recomputes each community's weight as the count of
// distinct text units attributed to its member entities drawn from the
// given entity set, keyed by community id.
//
// A precomputed "weight" attribute on the report is used when every entity
// list is empty, so indexes that shipped weights keep them.
func CommunityWeights(g *model.Graph, reports []*model.CommunityReport, entities []*model.Entity) map[string]float64 {
	byCommunity := make(map[string]map[string]bool)
	for _, e := range entities {
		for _, cid := range e.CommunityIDs {
			if byCommunity[cid] == nil {
				byCommunity[cid] = make(map[string]bool)
			}
			for _, uid := range e.TextUnitIDs {
				byCommunity[cid][uid] = true
			}
		}
	}

	out := make(map[string]float64, len(reports))
	for _, r := range reports {
		if units := byCommunity[r.CommunityID]; len(units) > 0 {
			out[r.CommunityID] = float64(len(units))
			continue
		}
		if v, ok := r.Attributes["weight"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[r.CommunityID] = f
				continue
			}
		}
		out[r.CommunityID] = 0
	}
	return out
}
