package retrieval

import (
	"sort"

	"github.com/brunobiangulo/graphrag/model"
)

// RankedTextUnit pairs a text unit with its transient sort keys.
type RankedTextUnit struct {
	Unit *model.TextUnit

	// EntityOrder is the index in the selected-entity list of the first
	// entity that references this unit.
	EntityOrder int

	// NumRelationships counts selected-entity relationships whose
	// text_unit_ids reference this unit.
	NumRelationships int
}

// TextUnitsFor walks each selected entity's text units in priority order,
// deduplicates, attaches the sort keys, and returns the units sorted by
// (EntityOrder asc, NumRelationships desc).
func TextUnitsFor(g *model.Graph, selected []*model.Entity) []RankedTextUnit {
	rels := append(InNetworkRelationships(g, selected), OutNetworkRelationships(g, selected)...)
	relRefs := make(map[string]int)
	titles := titleSet(selected)
	for _, r := range rels {
		// Count only edges touching a selected entity on either side.
		if !titles[r.Source] && !titles[r.Target] {
			continue
		}
		for _, uid := range r.TextUnitIDs {
			relRefs[uid]++
		}
	}

	seen := make(map[string]bool)
	var out []RankedTextUnit
	for order, e := range selected {
		for _, uid := range e.TextUnitIDs {
			if seen[uid] {
				continue
			}
			seen[uid] = true
			u, ok := g.TextUnitByID(uid)
			if !ok {
				continue // dangling reference, legal
			}
			out = append(out, RankedTextUnit{
				Unit:             u,
				EntityOrder:      order,
				NumRelationships: relRefs[uid],
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EntityOrder != out[j].EntityOrder {
			return out[i].EntityOrder < out[j].EntityOrder
		}
		return out[i].NumRelationships > out[j].NumRelationships
	})
	return out
}
