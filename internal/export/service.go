package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/skills-audit/internal/core/report"
)

const warningFill = "FFEBEE"

// Service writes audit payloads as XLSX workbooks into a directory.
type Service struct {
	dir    string
	logger *slog.Logger
}

func NewService(dir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "./output"
	}
	return &Service{dir: dir, logger: logger}
}

// Dir is where artifacts are written.
func (s *Service) Dir() string { return s.dir }

// Write renders p to <dir>/<p.Name>.xlsx and returns the file name.
func (s *Service) Write(ctx context.Context, p report.Payload) (string, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	buf, err := Render(p)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := p.Name + ".xlsx"
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid artifact name %q", p.Name)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), buf, 0o644); err != nil {
		return "", fmt.Errorf("xlsx save: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"artifact", name,
		"languages", len(p.Blocks),
		"highlighted", p.HighlightCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return name, nil
}

// Render lays the payload out as one sheet: per language a "DOYK" group header, a column
// header row, then one row per level with the language cell merged down the block.
// Blocks are separated by an empty row.
func Render(p report.Payload) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := p.Sheet
	if sheet == "" {
		sheet = report.SheetTitle
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}

	plain, err := f.NewStyle(&excelize.Style{Border: border, Alignment: center})
	if err != nil {
		return nil, fmt.Errorf("xlsx style: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Border: border, Alignment: center, Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("xlsx style: %w", err)
	}
	warning, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: center,
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{warningFill}},
	})
	if err != nil {
		return nil, fmt.Errorf("xlsx style: %w", err)
	}

	lastCol := 2 + len(p.Columns)
	cell := func(col, row int) string {
		name, _ := excelize.CoordinatesToCellName(col, row)
		return name
	}
	write := func(col, row int, v any, style int) {
		_ = f.SetCellValue(sheet, cell(col, row), v)
		_ = f.SetCellStyle(sheet, cell(col, row), cell(col, row), style)
	}

	row := 1
	for i, b := range p.Blocks {
		if i > 0 {
			row++
		}

		// group header over the skill columns
		for col := 1; col <= lastCol; col++ {
			write(col, row, "", header)
		}
		write(3, row, p.Header, header)
		if err := f.MergeCell(sheet, cell(3, row), cell(lastCol, row)); err != nil {
			return nil, fmt.Errorf("xlsx merge: %w", err)
		}

		headerRow := row + 1
		write(1, headerRow, "Dil", header)
		write(2, headerRow, "Seviye", header)
		for j, sk := range p.Columns {
			write(3+j, headerRow, string(sk), header)
		}

		first := headerRow + 1
		for j, r := range b.Rows {
			rr := first + j
			write(1, rr, b.Language, plain)
			write(2, rr, string(r.Level), plain)
			for k, c := range r.Cells {
				style := plain
				if c.Highlight {
					style = warning
				}
				write(3+k, rr, c.Count, style)
			}
		}
		last := first + len(b.Rows) - 1
		if len(b.Rows) > 1 {
			if err := f.MergeCell(sheet, cell(1, first), cell(1, last)); err != nil {
				return nil, fmt.Errorf("xlsx merge: %w", err)
			}
		}
		row = last + 1
	}

	_ = f.SetColWidth(sheet, "A", "A", 15) // language
	_ = f.SetColWidth(sheet, "B", "B", 10) // level
	if lastCol >= 3 {
		from, _ := excelize.ColumnNumberToName(3)
		to, _ := excelize.ColumnNumberToName(lastCol)
		_ = f.SetColWidth(sheet, from, to, 5)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
