// Package contextpack turns retrieved records into delimited text tables
// under a token budget, for inclusion in model prompts.
//
// One greedy packer serves every section: rows are appended in the order
// given until the next row would exceed the budget. A row is never split.
// The section header and the column header line are charged outside the
// budget, so a caller's budget bounds data rows only.
package contextpack

import (
	"strings"

	"github.com/brunobiangulo/graphrag/tokens"
)

// DefaultDelimiter separates columns within a row.
const DefaultDelimiter = "|"

// Packer renders tables under token budgets.
type Packer struct {
	counter tokens.Counter
	delim   string
}

// NewPacker creates a packer using the given token counter.
func NewPacker(counter tokens.Counter) *Packer {
	return &Packer{counter: counter, delim: DefaultDelimiter}
}

// Table is an ordered set of rows to pack. Ordering is the caller's
// responsibility; the packer only truncates.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Packed is the outcome of one packing call: the rendered text plus the
// rows that made it in, for caller observability.
type Packed struct {
	Name    string
	Columns []string
	Rows    [][]string
	Text    string
}

// Records converts the packed rows to column-keyed maps.
func (p Packed) Records() []map[string]string {
	out := make([]map[string]string, len(p.Rows))
	for i, row := range p.Rows {
		rec := make(map[string]string, len(p.Columns))
		for j, col := range p.Columns {
			if j < len(row) {
				rec[col] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

// Pack renders the table greedily under budget. The section header line
// `-----Name-----` and the column header are always emitted; budget
// applies to data rows (each counted with its trailing newline). A table
// with no rows surviving still renders its headers.
func (p *Packer) Pack(t Table, budget int) Packed {
	var b strings.Builder
	b.WriteString(p.header(t))

	used := 0
	var kept [][]string
	for _, row := range t.Rows {
		line := strings.Join(row, p.delim) + "\n"
		cost := p.counter.Count(line)
		if used+cost > budget {
			break
		}
		used += cost
		b.WriteString(line)
		kept = append(kept, row)
	}

	return Packed{Name: t.Name, Columns: t.Columns, Rows: kept, Text: b.String()}
}

// PackBatched splits the table into consecutive chunks of at most budget
// row tokens each, instead of truncating. Each chunk repeats the headers.
// A row that alone exceeds the budget is emitted as its own chunk so that
// no record is silently lost.
func (p *Packer) PackBatched(t Table, budget int) []Packed {
	if len(t.Rows) == 0 {
		return nil
	}

	var out []Packed
	start := 0
	used := 0
	for i, row := range t.Rows {
		cost := p.counter.Count(strings.Join(row, p.delim) + "\n")
		if i > start && used+cost > budget {
			out = append(out, p.render(Table{Name: t.Name, Columns: t.Columns, Rows: t.Rows[start:i]}))
			start = i
			used = 0
		}
		used += cost
	}
	out = append(out, p.render(Table{Name: t.Name, Columns: t.Columns, Rows: t.Rows[start:]}))
	return out
}

// render emits a table without a budget. Used for the final batch, whose
// rows were already measured.
func (p *Packer) render(t Table) Packed {
	var b strings.Builder
	b.WriteString(p.header(t))
	for _, row := range t.Rows {
		b.WriteString(strings.Join(row, p.delim))
		b.WriteString("\n")
	}
	return Packed{Name: t.Name, Columns: t.Columns, Rows: t.Rows, Text: b.String()}
}

func (p *Packer) header(t Table) string {
	return "-----" + t.Name + "-----\n" + strings.Join(t.Columns, p.delim) + "\n"
}
