package graphrag

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Citation kinds in canonical render order. They match the context table
// section names the model is shown.
var citationKinds = []string{"Entities", "Relationships", "Sources", "Claims", "Reports"}

// maxCitationIDs bounds how many ids one reference renders per kind;
// beyond that the reference carries a "+more" marker.
const maxCitationIDs = 5

var (
	citationRe = regexp.MustCompile(`\[\s*Data:([^\]]*)\]`)
	groupRe    = regexp.MustCompile(`(\w+)\s*\(([^)]*)\)`)
)

// ExtractCitations scans text for data references of the form
//
//	[Data: Entities (1, 2, 3, +more); Reports (7)]
//
// and returns the distinct cited ids per kind, sorted. Numeric ids sort
// numerically. Unknown kinds and the +more marker are ignored. Extraction
// is the inverse of RenderCitation on any well-formed reference.
func ExtractCitations(text string) map[string][]string {
	known := make(map[string]bool, len(citationKinds))
	for _, k := range citationKinds {
		known[k] = true
	}

	found := make(map[string]map[string]bool)
	for _, ref := range citationRe.FindAllStringSubmatch(text, -1) {
		for _, group := range strings.Split(ref[1], ";") {
			m := groupRe.FindStringSubmatch(group)
			if m == nil || !known[m[1]] {
				continue
			}
			for _, id := range strings.Split(m[2], ",") {
				id = strings.TrimSpace(id)
				if id == "" || id == "+more" {
					continue
				}
				if found[m[1]] == nil {
					found[m[1]] = make(map[string]bool)
				}
				found[m[1]][id] = true
			}
		}
	}

	if len(found) == 0 {
		return nil
	}
	out := make(map[string][]string, len(found))
	for kind, ids := range found {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sortIDs(list)
		out[kind] = list
	}
	return out
}

// RenderCitation renders one reference for the given kind/id mapping, at
// most 5 ids per kind with "+more" marking truncation. Kinds render in
// canonical order; unknown kinds are skipped. Returns "" for an empty
// mapping.
func RenderCitation(citations map[string][]string) string {
	var groups []string
	for _, kind := range citationKinds {
		ids := citations[kind]
		if len(ids) == 0 {
			continue
		}
		sorted := make([]string, len(ids))
		copy(sorted, ids)
		sortIDs(sorted)

		shown := sorted
		more := false
		if len(shown) > maxCitationIDs {
			shown = shown[:maxCitationIDs]
			more = true
		}
		rendered := strings.Join(shown, ", ")
		if more {
			rendered += ", +more"
		}
		groups = append(groups, kind+" ("+rendered+")")
	}
	if len(groups) == 0 {
		return ""
	}
	return "[Data: " + strings.Join(groups, "; ") + "]"
}

// sortIDs sorts numerically when every id is an integer, lexically
// otherwise.
func sortIDs(ids []string) {
	nums := make([]int, len(ids))
	numeric := true
	for i, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = n
	}
	if numeric {
		sort.Slice(ids, func(i, j int) bool {
			a, _ := strconv.Atoi(ids[i])
			b, _ := strconv.Atoi(ids[j])
			return a < b
		})
		return
	}
	sort.Strings(ids)
}
