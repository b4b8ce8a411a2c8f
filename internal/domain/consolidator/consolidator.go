// Package consolidator merges expanded rows into the final dataset, forces the
// run year, reconciles every group against its source aggregate and summarizes
// column provenance.
package consolidator

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/sampler"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/money"
)

// DefaultTolerance is the relative divergence accepted between an aggregate
// and the sum its rows represent.
const DefaultTolerance = 0.01

// Options configure consolidation.
type Options struct {
	// Year is stamped on every record. Zero keeps each record's own year.
	Year int
	// Tolerance is the relative count divergence accepted per group.
	Tolerance float64
	// AmountTolerance is the relative amount divergence accepted per group.
	// Zero uses Tolerance.
	AmountTolerance float64
}

// ColumnProvenance summarizes where one column's values came from.
type ColumnProvenance struct {
	Field      dataset.Field `json:"field"`
	Header     string        `json:"header"`
	Real       int           `json:"real"`
	Configured int           `json:"configured"`
	Synthetic  int           `json:"synthetic"`
	Missing    int           `json:"missing"`
}

// Total returns the number of values counted.
func (c ColumnProvenance) Total() int {
	return c.Real + c.Configured + c.Synthetic + c.Missing
}

// Share returns the fraction of values with the given provenance.
func (c ColumnProvenance) Share(p dataset.Provenance) float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	switch p {
	case dataset.ProvenanceReal:
		return float64(c.Real) / float64(total)
	case dataset.ProvenanceConfigured:
		return float64(c.Configured) / float64(total)
	case dataset.ProvenanceSynthetic:
		return float64(c.Synthetic) / float64(total)
	default:
		return float64(c.Missing) / float64(total)
	}
}

// GroupReconciliation compares one aggregate with its expanded rows.
type GroupReconciliation struct {
	SourceID          string           `json:"source_id"`
	Category          dataset.Category `json:"category"`
	Key               string           `json:"key"`
	Rows              int              `json:"rows"`
	ExpectedCount     int              `json:"expected_count"`
	RepresentedCount  float64          `json:"represented_count"`
	ExpectedAmount    decimal.Decimal  `json:"expected_amount"`
	RepresentedAmount decimal.Decimal  `json:"represented_amount"`
	OK                bool             `json:"ok"`
}

// CategoryTotal sums one category's aggregates and rows.
type CategoryTotal struct {
	Category         dataset.Category `json:"category"`
	Records          int              `json:"records"`
	Rows             int              `json:"rows"`
	Count            int              `json:"count"`
	RepresentedCount float64          `json:"represented_count"`
	Amount           decimal.Decimal  `json:"amount"`
}

// Dataset is the consolidated output of a run.
type Dataset struct {
	RunID          uuid.UUID
	Year           int
	CreatedAt      time.Time
	Columns        []dataset.Field
	Records        []dataset.ExpandedRecord
	Provenance     []ColumnProvenance
	Reconciliation []GroupReconciliation
	CategoryTotals []CategoryTotal
	Warnings       []dataset.Warning
	Audit          *dataset.Audit
}

// Consolidator builds datasets.
type Consolidator struct {
	opts   Options
	logger *slog.Logger
}

// New creates a consolidator.
func New(opts Options, logger *slog.Logger) *Consolidator {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.AmountTolerance <= 0 {
		opts.AmountTolerance = opts.Tolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{opts: opts, logger: logger}
}

// Consolidate merges groups in order. Reconciliation failures become warnings
// on the audit; rows are never dropped.
func (c *Consolidator) Consolidate(groups []sampler.Group, audit *dataset.Audit) *Dataset {
	if audit == nil {
		audit = dataset.NewAudit()
	}

	ds := &Dataset{
		RunID:     uuid.New(),
		Year:      c.opts.Year,
		CreatedAt: time.Now().UTC(),
		Columns:   dataset.Fields(),
		Audit:     audit,
	}

	provenance := make([]ColumnProvenance, dataset.NumFields)
	for _, f := range ds.Columns {
		provenance[f] = ColumnProvenance{Field: f, Header: f.Header()}
	}

	totals := make(map[dataset.Category]*CategoryTotal)
	var order []dataset.Category

	for _, g := range groups {
		audit.Records++
		if len(g.Rows) == 0 {
			audit.EmptyAggregates++
			audit.Warn(dataset.WarningEmptyAggregate, g.Source.ID(),
				fmt.Sprintf("aggregate %q has no positive total", g.Source.Key))
		}

		rec := c.reconcile(g)
		if !rec.OK {
			msg := fmt.Sprintf("expected %d represented %.2f", rec.ExpectedCount, rec.RepresentedCount)
			if !rec.ExpectedAmount.IsZero() {
				msg += fmt.Sprintf(", expected amount %s represented %s",
					money.FormatPEN(rec.ExpectedAmount), money.FormatPEN(rec.RepresentedAmount))
			}
			audit.Warn(dataset.WarningReconciliation, rec.SourceID, msg)
			c.logger.Warn("reconciliation mismatch",
				slog.String("record", rec.SourceID),
				slog.Int("expected", rec.ExpectedCount),
				slog.Float64("represented", rec.RepresentedCount),
			)
		}
		ds.Reconciliation = append(ds.Reconciliation, rec)

		t, ok := totals[g.Source.Category]
		if !ok {
			t = &CategoryTotal{Category: g.Source.Category, Amount: decimal.Zero}
			totals[g.Source.Category] = t
			order = append(order, g.Source.Category)
		}
		t.Records++
		t.Rows += len(g.Rows)
		t.Count += max(g.Source.TotalCount, 0)
		t.RepresentedCount += rec.RepresentedCount
		t.Amount = t.Amount.Add(g.Source.Amount)

		for _, row := range g.Rows {
			if c.opts.Year != 0 {
				row.Set(dataset.FieldYear, strconv.Itoa(c.opts.Year), dataset.ProvenanceReal)
			}
			for _, f := range ds.Columns {
				switch row.Get(f).Provenance {
				case dataset.ProvenanceReal:
					provenance[f].Real++
				case dataset.ProvenanceConfigured:
					provenance[f].Configured++
				case dataset.ProvenanceSynthetic:
					provenance[f].Synthetic++
				default:
					provenance[f].Missing++
				}
			}
			ds.Records = append(ds.Records, row)
		}
	}

	audit.ExpandedRows = len(ds.Records)
	ds.Provenance = provenance
	for _, cat := range order {
		ds.CategoryTotals = append(ds.CategoryTotals, *totals[cat])
	}
	ds.Warnings = audit.Warnings

	c.logger.Info("dataset consolidated",
		slog.String("run_id", ds.RunID.String()),
		slog.Int("records", len(ds.Records)),
		slog.Int("groups", len(groups)),
		slog.Int("warnings", len(ds.Warnings)),
	)
	return ds
}

func (c *Consolidator) reconcile(g sampler.Group) GroupReconciliation {
	rec := GroupReconciliation{
		SourceID:          g.Source.ID(),
		Category:          g.Source.Category,
		Key:               g.Source.Key,
		Rows:              len(g.Rows),
		ExpectedCount:     g.Source.TotalCount,
		ExpectedAmount:    g.Source.Amount,
		RepresentedAmount: decimal.Zero,
		OK:                true,
	}
	for _, row := range g.Rows {
		rec.RepresentedCount += row.RepresentedCount
		rec.RepresentedAmount = rec.RepresentedAmount.Add(row.RepresentedAmount)
	}

	if rec.ExpectedCount > 0 {
		diff := math.Abs(rec.RepresentedCount-float64(rec.ExpectedCount)) / float64(rec.ExpectedCount)
		if diff > c.opts.Tolerance {
			rec.OK = false
		}
	}
	if !rec.ExpectedAmount.IsZero() {
		diff := rec.RepresentedAmount.Sub(rec.ExpectedAmount).Abs().Div(rec.ExpectedAmount.Abs())
		if diff.GreaterThan(decimal.NewFromFloat(c.opts.AmountTolerance)) {
			rec.OK = false
		}
	}
	return rec
}

// ProvenanceOf returns the summary of one column.
func (d *Dataset) ProvenanceOf(f dataset.Field) ColumnProvenance {
	if int(f) < len(d.Provenance) {
		return d.Provenance[f]
	}
	return ColumnProvenance{Field: f, Header: f.Header()}
}

// SyntheticFields lists the columns with at least one synthetic value.
func (d *Dataset) SyntheticFields() []dataset.Field {
	var out []dataset.Field
	for _, p := range d.Provenance {
		if p.Synthetic > 0 {
			out = append(out, p.Field)
		}
	}
	return out
}
