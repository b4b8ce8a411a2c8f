package normalizer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/money"
)

// ErrUnrecognizedLayout is returned when no header alias and no positional map
// can identify the key and figure columns of a table.
var ErrUnrecognizedLayout = errors.New("unrecognized table layout")

// RowError describes a row that was skipped.
type RowError struct {
	Row     int
	Column  string
	Reason  dataset.SkipReason
	RawData string
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d, column %s: %s (%q)", e.Row, e.Column, e.Reason, e.RawData)
}

// Result is the outcome of normalizing one table.
type Result struct {
	Records     []dataset.CanonicalRecord
	Errors      []RowError
	TotalRows   int
	ParsedRows  int
	SkippedRows int
	Layout      Layout
	// HeaderRow is the zero-based grid row used as header, -1 if none.
	HeaderRow int
}

// Normalizer converts tagged tables into canonical records.
type Normalizer struct {
	schemas map[dataset.Category]Schema
	opts    Options
	markers map[string]struct{}
	logger  *slog.Logger
}

// New creates a normalizer for the given category schemas.
func New(schemas []Schema, opts Options, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	n := &Normalizer{
		schemas: make(map[dataset.Category]Schema, len(schemas)),
		opts:    opts,
		markers: make(map[string]struct{}, len(opts.TotalMarkers)),
		logger:  logger,
	}
	for _, s := range schemas {
		n.schemas[s.Category] = s
	}
	for _, m := range opts.TotalMarkers {
		n.markers[dataset.Fold(m)] = struct{}{}
	}
	return n
}

// Schema returns the schema registered for a category.
func (n *Normalizer) Schema(c dataset.Category) (Schema, bool) {
	s, ok := n.schemas[c]
	return s, ok
}

// Normalize extracts canonical records from a tagged table. Row problems are
// recorded in the result; only an unrecognized layout fails the table.
func (n *Normalizer) Normalize(table dataset.TaggedTable, year int) (*Result, error) {
	schema, ok := n.schemas[table.Category]
	if !ok {
		return nil, fmt.Errorf("%w: no schema for category %q", ErrUnrecognizedLayout, table.Category)
	}

	headerRow, cols := n.findHeader(table.Grid, schema)
	layout := LayoutAliases
	if !cols.usable() {
		pos := schema.positionalColumns()
		if !pos.usable() || table.Width() < pos.width() {
			return nil, fmt.Errorf("%w: page %d table %d (%s)", ErrUnrecognizedLayout, table.Page, table.Index, table.Category)
		}
		// a row that matched some aliases is still skipped as the header
		cols = pos
		layout = LayoutPositional
	}

	result := &Result{
		Records:   make([]dataset.CanonicalRecord, 0, len(table.Grid)),
		Layout:    layout,
		HeaderRow: headerRow,
	}

	var headerKey string
	if headerRow >= 0 {
		headerKey = dataset.Fold(cell(table.Grid[headerRow], cols[RoleKey]))
	}

	for i := headerRow + 1; i < len(table.Grid); i++ {
		row := table.Grid[i]
		result.TotalRows++

		rec, rowErr := n.processRow(row, i+1, cols, schema, headerKey)
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			result.SkippedRows++
			continue
		}

		rec.Year = year
		rec.Page = table.Page
		rec.Table = table.Index
		result.Records = append(result.Records, *rec)
		result.ParsedRows++
	}

	if result.SkippedRows > 0 {
		n.logger.Warn("rows skipped while normalizing table",
			slog.Int("page", table.Page),
			slog.Int("table", table.Index),
			slog.String("category", string(table.Category)),
			slog.Int("skipped", result.SkippedRows),
			slog.Int("parsed", result.ParsedRows),
		)
	}
	return result, nil
}

// findHeader picks, among the first HeaderScan rows, the one whose cells match
// the most aliases. The first row wins ties.
func (n *Normalizer) findHeader(grid [][]string, schema Schema) (int, columns) {
	best := -1
	bestCols := newColumns()
	for i := 0; i < len(grid) && i < n.opts.HeaderScan; i++ {
		cols := n.headerColumns(grid[i], schema)
		if cols.hits() > bestCols.hits() {
			best, bestCols = i, cols
		}
	}
	return best, bestCols
}

// headerColumns resolves roles against one header row in three passes: exact
// folded alias, then containment, then fuzzy distance. A column is claimed by
// at most one role; within a pass the leftmost column wins.
func (n *Normalizer) headerColumns(header []string, schema Schema) columns {
	cols := newColumns()
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = dataset.Fold(h)
	}
	claimed := make([]bool, len(header))

	passes := []func(cell, alias string) bool{
		func(cell, alias string) bool { return cell == alias },
		func(cell, alias string) bool { return strings.Contains(cell, alias) },
		func(cell, alias string) bool {
			if n.opts.FuzzyDistance < 0 || len(alias) < 5 {
				return false
			}
			return fuzzy.LevenshteinDistance(cell, alias) <= n.opts.FuzzyDistance
		},
	}

	for _, match := range passes {
		for _, role := range Roles {
			if cols.has(role) {
				continue
			}
			for ci, cellText := range folded {
				if claimed[ci] || cellText == "" {
					continue
				}
				if matchesAny(cellText, schema.Aliases[role], match) {
					cols[role] = ci
					claimed[ci] = true
					break
				}
			}
		}
	}
	return cols
}

func matchesAny(cellText string, aliases []string, match func(cell, alias string) bool) bool {
	for _, a := range aliases {
		alias := dataset.Fold(a)
		if alias != "" && match(cellText, alias) {
			return true
		}
	}
	return false
}

// processRow converts one grid row. rowNum is one-based.
func (n *Normalizer) processRow(row []string, rowNum int, cols columns, schema Schema, headerKey string) (*dataset.CanonicalRecord, *RowError) {
	if blankRow(row) {
		return nil, &RowError{Row: rowNum, Reason: dataset.SkipEmptyRow}
	}

	key := cleanCell(cell(row, cols[RoleKey]))
	if key == "" {
		return nil, &RowError{Row: rowNum, Column: RoleKey.String(), Reason: dataset.SkipBlankKey}
	}
	folded := dataset.Fold(strings.TrimRight(key, ":*"))
	if _, ok := n.markers[folded]; ok {
		return nil, &RowError{Row: rowNum, Column: RoleKey.String(), Reason: dataset.SkipTotalRow, RawData: key}
	}
	if n.repeatedHeader(row, folded, cols, schema, headerKey) {
		return nil, &RowError{Row: rowNum, Column: RoleKey.String(), Reason: dataset.SkipRepeatedHeader, RawData: key}
	}

	rec := &dataset.CanonicalRecord{
		Category:   schema.Category,
		Key:        key,
		Dimensions: map[dataset.Field]string{schema.KeyField: key},
		Row:        rowNum,
	}
	if len(schema.Fixed) > 0 {
		rec.Configured = make(map[dataset.Field]string, len(schema.Fixed))
		for f, v := range schema.Fixed {
			if f != schema.KeyField {
				rec.Configured[f] = v
			}
		}
	}

	counts := map[Role]*int{
		RoleNew:        &rec.NewCount,
		RoleContinuing: &rec.ContinuingCount,
		RoleTotal:      &rec.TotalCount,
	}
	present := 0
	for _, role := range []Role{RoleNew, RoleContinuing, RoleTotal} {
		if !cols.has(role) {
			continue
		}
		raw := cell(row, cols[role])
		v, ok, err := ParseCount(raw)
		if err != nil {
			return nil, &RowError{Row: rowNum, Column: role.String(), Reason: dataset.SkipBadNumber, RawData: raw}
		}
		if ok {
			*counts[role] = v
			present++
		}
	}

	rec.Amount = decimal.Zero
	if cols.has(RoleAmount) {
		raw := cell(row, cols[RoleAmount])
		if !blankNumber(raw) {
			amount, err := money.ParseAmount(raw)
			if err != nil {
				return nil, &RowError{Row: rowNum, Column: RoleAmount.String(), Reason: dataset.SkipBadNumber, RawData: raw}
			}
			rec.Amount = amount
			present++
		}
	}

	if present == 0 {
		return nil, &RowError{Row: rowNum, Reason: dataset.SkipEmptyRow, RawData: key}
	}
	if !cols.has(RoleTotal) || blankNumber(cell(row, cols[RoleTotal])) {
		rec.TotalCount = rec.NewCount + rec.ContinuingCount
	}
	return rec, nil
}

// repeatedHeader reports whether a row repeats the header: its key is the
// header label or a key alias and none of its figure cells holds a number.
// A key such as "Universidad" can be both an alias and a real data row.
func (n *Normalizer) repeatedHeader(row []string, folded string, cols columns, schema Schema, headerKey string) bool {
	if folded != headerKey && !matchesAny(folded, schema.Aliases[RoleKey], func(c, a string) bool { return c == a }) {
		return false
	}
	for _, role := range []Role{RoleNew, RoleContinuing, RoleTotal} {
		if !cols.has(role) {
			continue
		}
		if _, ok, err := ParseCount(cell(row, cols[role])); ok && err == nil {
			return false
		}
	}
	if cols.has(RoleAmount) {
		raw := cell(row, cols[RoleAmount])
		if !blankNumber(raw) {
			if _, err := money.ParseAmount(raw); err == nil {
				return false
			}
		}
	}
	return true
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// cleanCell trims the cell and collapses internal whitespace, including the
// line breaks PDF extraction leaves inside wrapped cells.
func cleanCell(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}

func blankRow(row []string) bool {
	for _, c := range row {
		if cleanCell(c) != "" {
			return false
		}
	}
	return true
}
