package normalizer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

// CanonicalRow is one line of a pre-extracted aggregate CSV. gocsv matches
// columns by header name; missing columns stay empty.
type CanonicalRow struct {
	Key        string `csv:"key"`
	New        string `csv:"new"`
	Continuing string `csv:"continuing"`
	Total      string `csv:"total"`
	Amount     string `csv:"amount"`
	Page       string `csv:"page"`
}

// canonicalColumns maps the cells built from a CanonicalRow.
var canonicalColumns = columns{
	RoleNone:       -1,
	RoleKey:        0,
	RoleNew:        1,
	RoleContinuing: 2,
	RoleTotal:      3,
	RoleAmount:     4,
}

// LoadCanonicalCSV reads aggregates that were already extracted into
// key,new,continuing,total,amount,page columns. Rows go through the same
// filtering as table rows.
func (n *Normalizer) LoadCanonicalCSV(r io.Reader, category dataset.Category, year int) (*Result, error) {
	schema, ok := n.schemas[category]
	if !ok {
		return nil, fmt.Errorf("%w: no schema for category %q", ErrUnrecognizedLayout, category)
	}

	var rows []CanonicalRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse canonical CSV: %w", err)
	}

	result := &Result{
		Records:   make([]dataset.CanonicalRecord, 0, len(rows)),
		Layout:    LayoutAliases,
		HeaderRow: 0,
	}
	for i, row := range rows {
		rowNum := i + 2 // 1-indexed plus header
		result.TotalRows++

		cells := []string{row.Key, row.New, row.Continuing, row.Total, row.Amount}
		rec, rowErr := n.processRow(cells, rowNum, canonicalColumns, schema, "")
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			result.SkippedRows++
			continue
		}

		if p := strings.TrimSpace(row.Page); p != "" {
			page, err := strconv.Atoi(p)
			if err != nil {
				result.Errors = append(result.Errors, RowError{Row: rowNum, Column: "page", Reason: dataset.SkipBadNumber, RawData: row.Page})
				result.SkippedRows++
				continue
			}
			rec.Page = page
		}
		rec.Year = year
		rec.Table = 0
		result.Records = append(result.Records, *rec)
		result.ParsedRows++
	}
	return result, nil
}
