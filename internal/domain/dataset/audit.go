package dataset

import "sort"

// SkipReason explains why a row never became a canonical record.
type SkipReason string

const (
	SkipBlankKey         SkipReason = "blank_key"
	SkipTotalRow         SkipReason = "total_row"
	SkipRepeatedHeader   SkipReason = "repeated_header"
	SkipBadNumber        SkipReason = "bad_number"
	SkipEmptyRow         SkipReason = "empty_row"
	SkipUnrecognizedRow  SkipReason = "unrecognized_layout"
	// SkipExcludedCategory counts the rows of tables whose category the
	// family excludes from expansion.
	SkipExcludedCategory SkipReason = "excluded_category"
)

// WarningKind classifies audit warnings.
type WarningKind string

const (
	WarningReconciliation WarningKind = "reconciliation"
	WarningLayout         WarningKind = "layout"
	WarningEmptyAggregate WarningKind = "empty_aggregate"
)

// Warning is a non-fatal condition surfaced in the audit output.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	SourceID string      `json:"source_id"`
	Message  string      `json:"message"`
}

// Audit counts everything the pipeline absorbed instead of failing.
type Audit struct {
	Pages              int                `json:"pages"`
	Tables             int                `json:"tables"`
	TablesByCategory   map[Category]int   `json:"tables_by_category"`
	TablesOther        int                `json:"tables_other"`
	TablesUnrecognized int                `json:"tables_unrecognized"`
	RowsSeen           int                `json:"rows_seen"`
	RowsSkipped        map[SkipReason]int `json:"rows_skipped"`
	Records            int                `json:"records"`
	EmptyAggregates    int                `json:"empty_aggregates"`
	ExpandedRows       int                `json:"expanded_rows"`
	Warnings           []Warning          `json:"warnings"`
}

// NewAudit returns an audit with initialized maps.
func NewAudit() *Audit {
	return &Audit{
		TablesByCategory: make(map[Category]int),
		RowsSkipped:      make(map[SkipReason]int),
	}
}

// Skip records a skipped row.
func (a *Audit) Skip(reason SkipReason, n int) {
	if n == 0 {
		return
	}
	a.RowsSkipped[reason] += n
}

// Warn appends a warning.
func (a *Audit) Warn(kind WarningKind, sourceID, message string) {
	a.Warnings = append(a.Warnings, Warning{Kind: kind, SourceID: sourceID, Message: message})
}

// TotalSkipped sums skipped rows across reasons.
func (a *Audit) TotalSkipped() int {
	total := 0
	for _, n := range a.RowsSkipped {
		total += n
	}
	return total
}

// SkipReasons returns the recorded reasons in stable order.
func (a *Audit) SkipReasons() []SkipReason {
	reasons := make([]SkipReason, 0, len(a.RowsSkipped))
	for r := range a.RowsSkipped {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return reasons
}
