package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/consolidator"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

// RowsTable is the table consolidated rows are copied into.
const RowsTable = "scholarship_rows"

const createRowsTable = `CREATE TABLE IF NOT EXISTS scholarship_rows (
	run_id               UUID NOT NULL,
	row_number           INTEGER NOT NULL,
	program              TEXT,
	institution          TEXT,
	career               TEXT,
	location             TEXT,
	scholarship_category TEXT,
	year                 TEXT,
	gender               TEXT,
	stratum              TEXT,
	migration            TEXT,
	represented_count    DOUBLE PRECISION NOT NULL,
	represented_amount   NUMERIC(20, 6) NOT NULL,
	source_id            TEXT NOT NULL,
	source_category      TEXT NOT NULL,
	source_page          INTEGER NOT NULL,
	synthetic_fields     TEXT[] NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, row_number)
)`

// DB is the subset of a pgx pool the sink needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// RowColumns are the copied columns in order.
var RowColumns = []string{
	"run_id", "row_number",
	"program", "institution", "career", "location", "scholarship_category",
	"year", "gender", "stratum", "migration",
	"represented_count", "represented_amount",
	"source_id", "source_category", "source_page", "synthetic_fields",
}

// PostgresSink copies datasets into Postgres.
type PostgresSink struct {
	db      DB
	logger  *slog.Logger
	mu      sync.Mutex
	ensured bool
}

// NewPostgresSink creates a sink on a pool or connection.
func NewPostgresSink(db DB, logger *slog.Logger) *PostgresSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSink{db: db, logger: logger}
}

func (s *PostgresSink) ensureTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if _, err := s.db.Exec(ctx, createRowsTable); err != nil {
		return fmt.Errorf("failed to create %s: %w", RowsTable, err)
	}
	s.ensured = true
	return nil
}

// Write copies every record of ds and returns the number of rows copied.
func (s *PostgresSink) Write(ctx context.Context, ds *consolidator.Dataset) (int64, error) {
	if err := s.ensureTable(ctx); err != nil {
		return 0, err
	}

	src := pgx.CopyFromSlice(len(ds.Records), func(i int) ([]any, error) {
		return rowValues(ds, i), nil
	})
	n, err := s.db.CopyFrom(ctx, pgx.Identifier{RowsTable}, RowColumns, src)
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows: %w", err)
	}

	s.logger.Info("dataset stored",
		slog.String("run_id", ds.RunID.String()),
		slog.String("table", RowsTable),
		slog.Int64("rows", n),
	)
	return n, nil
}

func rowValues(ds *consolidator.Dataset, i int) []any {
	rec := ds.Records[i]
	values := make([]any, 0, len(RowColumns))
	values = append(values, ds.RunID, i+1)

	synthetic := []string{}
	for _, f := range dataset.Fields() {
		v := rec.Get(f)
		if v.Provenance == dataset.ProvenanceMissing || v.Text == "" {
			values = append(values, nil)
		} else {
			values = append(values, v.Text)
		}
		if v.Provenance == dataset.ProvenanceSynthetic {
			synthetic = append(synthetic, f.String())
		}
	}

	return append(values,
		rec.RepresentedCount,
		numeric(rec.RepresentedAmount),
		rec.SourceID,
		string(rec.SourceCategory),
		rec.SourcePage,
		synthetic,
	)
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
