package contextpack

import (
	"strconv"

	"github.com/brunobiangulo/graphrag/model"
	"github.com/brunobiangulo/graphrag/retrieval"
)

// Section names. They match the citation kinds so that model output can
// cite rows by table name and short id.
const (
	SectionEntities      = "Entities"
	SectionRelationships = "Relationships"
	SectionClaims        = "Claims"
	SectionSources       = "Sources"
	SectionReports       = "Reports"
)

// EntityTable builds the entities section in the order given.
func EntityTable(entities []*model.Entity) Table {
	rows := make([][]string, len(entities))
	for i, e := range entities {
		rows[i] = []string{e.ShortID, e.Title, e.Description, strconv.Itoa(e.Rank)}
	}
	return Table{
		Name:    SectionEntities,
		Columns: []string{"id", "entity", "description", "rank"},
		Rows:    rows,
	}
}

// RelationshipTable builds the relationships section in the order given.
func RelationshipTable(rels []*model.Relationship) Table {
	rows := make([][]string, len(rels))
	for i, r := range rels {
		rows[i] = []string{
			r.ShortID, r.Source, r.Target, r.Description,
			formatFloat(r.Weight), strconv.Itoa(r.Rank),
		}
	}
	return Table{
		Name:    SectionRelationships,
		Columns: []string{"id", "source", "target", "description", "weight", "rank"},
		Rows:    rows,
	}
}

// ClaimTable builds the claims (covariates) section in the order given.
func ClaimTable(covs []*model.Covariate) Table {
	rows := make([][]string, len(covs))
	for i, c := range covs {
		rows[i] = []string{
			c.ShortID, c.SubjectID, c.Type,
			c.Attributes["status"], c.Attributes["description"],
		}
	}
	return Table{
		Name:    SectionClaims,
		Columns: []string{"id", "subject", "type", "status", "description"},
		Rows:    rows,
	}
}

// SourceTable builds the text-units section in the order given.
func SourceTable(units []retrieval.RankedTextUnit) Table {
	rows := make([][]string, len(units))
	for i, u := range units {
		rows[i] = []string{u.Unit.ShortID, u.Unit.Text}
	}
	return Table{
		Name:    SectionSources,
		Columns: []string{"id", "text"},
		Rows:    rows,
	}
}

// ReportOptions controls the optional columns of a report table.
type ReportOptions struct {
	// IncludeWeight adds a weight column from the Weights map.
	IncludeWeight bool

	// NormalizeWeight rescales weights by the batch maximum.
	NormalizeWeight bool

	// IncludeRank adds the report rank column.
	IncludeRank bool

	// Weights maps community id to its recomputed weight.
	Weights map[string]float64
}

// ReportTable builds the community reports section. Reports must already
// be sorted by the caller (matches desc, rank desc); this function only
// renders.
func ReportTable(reports []*model.CommunityReport, opts ReportOptions) Table {
	cols := []string{"id", "title", "content"}
	if opts.IncludeWeight {
		cols = append(cols, "weight")
	}
	if opts.IncludeRank {
		cols = append(cols, "rank")
	}

	maxWeight := 0.0
	if opts.IncludeWeight && opts.NormalizeWeight {
		for _, r := range reports {
			if w := opts.Weights[r.CommunityID]; w > maxWeight {
				maxWeight = w
			}
		}
	}

	rows := make([][]string, len(reports))
	for i, r := range reports {
		row := []string{r.ShortID, r.Title, r.FullContent}
		if opts.IncludeWeight {
			w := opts.Weights[r.CommunityID]
			if opts.NormalizeWeight && maxWeight > 0 {
				w = w / maxWeight
			}
			row = append(row, formatFloat(w))
		}
		if opts.IncludeRank {
			row = append(row, formatFloat(r.Rank))
		}
		rows[i] = row
	}
	return Table{Name: SectionReports, Columns: cols, Rows: rows}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
