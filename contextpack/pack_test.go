package contextpack

import (
	"strings"
	"testing"

	"github.com/brunobiangulo/graphrag/model"
)

// wordCounter counts whitespace-separated fields, giving tests exact
// control over row costs.
type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(strings.Fields(s)) }

func row(words ...string) []string { return words }

func TestPackBudget(t *testing.T) {
	p := NewPacker(wordCounter{})
	table := Table{
		Name:    "Entities",
		Columns: []string{"id", "entity"},
		Rows: [][]string{
			row("1", "alpha"),  // 1 word after joining with | -> "1|alpha" = 1 field
			row("2", "beta"),   // 1
			row("3", "gamma"),  // 1
		},
	}

	packed := p.Pack(table, 2)
	if len(packed.Rows) != 2 {
		t.Fatalf("kept %d rows, want 2", len(packed.Rows))
	}
	if !strings.HasPrefix(packed.Text, "-----Entities-----\nid|entity\n") {
		t.Errorf("missing headers: %q", packed.Text)
	}
	if !strings.Contains(packed.Text, "1|alpha\n") || !strings.Contains(packed.Text, "2|beta\n") {
		t.Errorf("kept rows missing: %q", packed.Text)
	}
	if strings.Contains(packed.Text, "gamma") {
		t.Errorf("over-budget row emitted: %q", packed.Text)
	}
}

// A row never appears partially: either the whole row fits or it is
// dropped.
func TestPackNoPartialRow(t *testing.T) {
	p := NewPacker(wordCounter{})
	table := Table{
		Name:    "Sources",
		Columns: []string{"id", "text"},
		Rows: [][]string{
			{"1", "one two three four five"}, // 5 fields once joined
		},
	}
	packed := p.Pack(table, 3)
	if len(packed.Rows) != 0 {
		t.Fatalf("kept %d rows, want 0", len(packed.Rows))
	}
	if strings.Contains(packed.Text, "one") {
		t.Errorf("partial row content emitted: %q", packed.Text)
	}
	// Headers still render for an empty section.
	if !strings.HasPrefix(packed.Text, "-----Sources-----\n") {
		t.Errorf("missing section header: %q", packed.Text)
	}
}

func TestPackZeroBudget(t *testing.T) {
	p := NewPacker(wordCounter{})
	packed := p.Pack(Table{Name: "T", Columns: []string{"id"}, Rows: [][]string{{"1"}}}, 0)
	if len(packed.Rows) != 0 {
		t.Errorf("kept %d rows with zero budget", len(packed.Rows))
	}
}

func TestPackBatched(t *testing.T) {
	p := NewPacker(wordCounter{})
	table := Table{
		Name:    "Reports",
		Columns: []string{"id", "content"},
		Rows: [][]string{
			{"1", "aa bb"}, // 2 fields: "1|aa" "bb"
			{"2", "cc dd"},
			{"3", "ee ff"},
		},
	}

	chunks := p.PackBatched(table, 4)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0].Rows) != 2 || len(chunks[1].Rows) != 1 {
		t.Errorf("chunk sizes = %d, %d, want 2, 1", len(chunks[0].Rows), len(chunks[1].Rows))
	}
	for i, c := range chunks {
		if !strings.HasPrefix(c.Text, "-----Reports-----\nid|content\n") {
			t.Errorf("chunk %d missing headers: %q", i, c.Text)
		}
	}
}

// A row larger than the whole budget still lands in a chunk of its own.
func TestPackBatchedOversizedRow(t *testing.T) {
	p := NewPacker(wordCounter{})
	table := Table{
		Name:    "Reports",
		Columns: []string{"id", "content"},
		Rows: [][]string{
			{"1", strings.Repeat("w ", 20)},
		},
	}
	chunks := p.PackBatched(table, 4)
	if len(chunks) != 1 || len(chunks[0].Rows) != 1 {
		t.Fatalf("oversized row lost: %d chunks", len(chunks))
	}
}

func TestPackBatchedEmpty(t *testing.T) {
	p := NewPacker(wordCounter{})
	if chunks := p.PackBatched(Table{Name: "T", Columns: []string{"id"}}, 10); chunks != nil {
		t.Errorf("empty table produced %d chunks", len(chunks))
	}
}

func TestRecords(t *testing.T) {
	packed := Packed{
		Columns: []string{"id", "entity"},
		Rows:    [][]string{{"1", "Alice"}},
	}
	recs := packed.Records()
	if len(recs) != 1 || recs[0]["id"] != "1" || recs[0]["entity"] != "Alice" {
		t.Errorf("Records() = %v", recs)
	}
}

func TestReportTableWeightNormalization(t *testing.T) {
	reports := []*model.CommunityReport{
		{ShortID: "1", CommunityID: "c1", Title: "A", FullContent: "x", Rank: 7},
		{ShortID: "2", CommunityID: "c2", Title: "B", FullContent: "y", Rank: 3},
	}
	table := ReportTable(reports, ReportOptions{
		IncludeWeight:   true,
		NormalizeWeight: true,
		IncludeRank:     true,
		Weights:         map[string]float64{"c1": 10, "c2": 5},
	})

	wantCols := []string{"id", "title", "content", "weight", "rank"}
	if strings.Join(table.Columns, ",") != strings.Join(wantCols, ",") {
		t.Fatalf("columns = %v, want %v", table.Columns, wantCols)
	}
	// Weights rescale by the batch max (10): 1 and 0.5.
	if table.Rows[0][3] != "1" || table.Rows[1][3] != "0.5" {
		t.Errorf("weights = %s, %s, want 1, 0.5", table.Rows[0][3], table.Rows[1][3])
	}
	if table.Rows[0][4] != "7" {
		t.Errorf("rank = %s, want 7", table.Rows[0][4])
	}
}

func TestEntityTableRow(t *testing.T) {
	table := EntityTable([]*model.Entity{
		{ShortID: "4", Title: "Alice", Description: "person", Rank: 2},
	})
	want := []string{"4", "Alice", "person", "2"}
	got := table.Rows[0]
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
