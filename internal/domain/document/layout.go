package document

import (
	"strings"
	"unicode/utf8"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

// Span is a run of text drawn at a horizontal position, in points.
type Span struct {
	X    float64
	Text string
}

// Line is a visual row of spans sharing a baseline, ordered left to right.
type Line struct {
	Y     float64
	Spans []Span
}

// Layout tunes table reconstruction from positioned text.
type Layout struct {
	// CellGap is the horizontal whitespace, in points, that starts a new cell.
	CellGap float64
	// GlyphWidth is the estimated advance of one rune, in points. Positioned
	// runs carry no width, so the end of a run is estimated from its length.
	GlyphWidth float64
	// MinColumns is the number of cells a line needs to belong to a table.
	MinColumns int
	// MinRows is the number of consecutive tabular lines that form a table.
	MinRows int
}

const (
	DefaultCellGap    = 8.0
	DefaultGlyphWidth = 5.0
	DefaultMinColumns = 2
	DefaultMinRows    = 2
)

func (l Layout) withDefaults() Layout {
	if l.CellGap <= 0 {
		l.CellGap = DefaultCellGap
	}
	if l.GlyphWidth <= 0 {
		l.GlyphWidth = DefaultGlyphWidth
	}
	if l.MinColumns <= 0 {
		l.MinColumns = DefaultMinColumns
	}
	if l.MinRows <= 0 {
		l.MinRows = DefaultMinRows
	}
	return l
}

// Cells splits a line into cells. Spans closer than CellGap are joined, with a
// space when the gap is wider than half a glyph.
func (l Layout) Cells(line Line) []string {
	l = l.withDefaults()

	var (
		cells []string
		cur   strings.Builder
		end   float64
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			cells = append(cells, s)
		}
		cur.Reset()
	}

	for i, sp := range line.Spans {
		if sp.Text == "" {
			continue
		}
		if i > 0 && cur.Len() > 0 {
			gap := sp.X - end
			switch {
			case gap > l.CellGap:
				flush()
			case gap > l.GlyphWidth/2:
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(sp.Text)
		end = sp.X + float64(utf8.RuneCountInString(sp.Text))*l.GlyphWidth
	}
	flush()
	return cells
}

// Tables groups consecutive tabular lines of a page into raw tables. Lines
// with fewer than MinColumns cells end the current table.
func (l Layout) Tables(page int, lines []Line, context string) []dataset.RawTable {
	l = l.withDefaults()

	var (
		tables []dataset.RawTable
		grid   [][]string
	)
	emit := func() {
		if len(grid) >= l.MinRows {
			tables = append(tables, dataset.RawTable{
				Page:    page,
				Index:   len(tables) + 1,
				Grid:    grid,
				Context: context,
			})
		}
		grid = nil
	}

	for _, line := range lines {
		cells := l.Cells(line)
		if len(cells) >= l.MinColumns {
			grid = append(grid, cells)
			continue
		}
		emit()
	}
	emit()
	return tables
}
