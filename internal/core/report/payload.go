// Package report shapes an aggregated table into a writer-ready payload.
package report

import (
	"slices"
	"sort"

	"github.com/joseph-ayodele/skills-audit/constants"
	"github.com/joseph-ayodele/skills-audit/internal/core/aggregate"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
)

const (
	SheetTitle  = "DOYK Analizi"
	GroupHeader = "DOYK"
)

// Cell is one skill count with its highlight decision.
type Cell struct {
	Skill     constants.Skill `json:"skill"`
	Count     int             `json:"count"`
	Highlight bool            `json:"highlight"`
}

// Row is one level inside a language block. Cells follow Payload.Columns.
type Row struct {
	Level constants.Level `json:"level"`
	Cells []Cell          `json:"cells"`
}

// Block is a language with its level rows; the writer merges Language across all Rows.
type Block struct {
	Language  string `json:"language"`
	Threshold int    `json:"threshold"`
	Rows      []Row  `json:"rows"`
}

// Payload is everything a report writer needs. Name is the artifact base name
// without extension.
type Payload struct {
	Name    string            `json:"name"`
	Sheet   string            `json:"sheet"`
	Header  string            `json:"header"`
	Columns []constants.Skill `json:"columns"`
	Blocks  []Block           `json:"blocks"`
}

// Build lays out table in languages order (languages missing from the list follow,
// sorted by name). Levels sort by letter then number; columns are D, O, Y, K.
// Languages without any level are omitted.
func Build(name string, table entity.AggregateTable, languages []string, th aggregate.Thresholds) Payload {
	p := Payload{
		Name:    name,
		Sheet:   SheetTitle,
		Header:  GroupHeader,
		Columns: constants.Skills(),
	}

	for _, lang := range languageOrder(table, languages) {
		levels := table[lang]
		if len(levels) == 0 {
			continue
		}
		minimum := th.For(lang)
		block := Block{Language: lang, Threshold: minimum}

		codes := make([]constants.Level, 0, len(levels))
		for lv := range levels {
			codes = append(codes, lv)
		}
		sort.Slice(codes, func(i, j int) bool { return constants.LessLevel(codes[i], codes[j]) })

		for _, lv := range codes {
			counts := levels[lv]
			row := Row{Level: lv, Cells: make([]Cell, 0, len(p.Columns))}
			for _, sk := range p.Columns {
				n := counts[sk]
				row.Cells = append(row.Cells, Cell{Skill: sk, Count: n, Highlight: n < minimum})
			}
			block.Rows = append(block.Rows, row)
		}
		p.Blocks = append(p.Blocks, block)
	}
	return p
}

func languageOrder(table entity.AggregateTable, languages []string) []string {
	out := make([]string, 0, len(table))
	seen := make(map[string]struct{}, len(table))
	for _, l := range languages {
		if _, ok := table[l]; !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	var rest []string
	for l := range table {
		if _, ok := seen[l]; !ok {
			rest = append(rest, l)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// HighlightCount returns how many cells are flagged.
func (p Payload) HighlightCount() int {
	n := 0
	for _, b := range p.Blocks {
		for _, r := range b.Rows {
			for _, c := range r.Cells {
				if c.Highlight {
					n++
				}
			}
		}
	}
	return n
}
