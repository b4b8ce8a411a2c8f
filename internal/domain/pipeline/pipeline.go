// Package pipeline runs a document family end to end: tables are classified and
// normalized in parallel, then expanded and consolidated sequentially so the
// output only depends on the document, the family and the seed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/classifier"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/consolidator"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/document"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/family"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/normalizer"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/sampler"
)

const tracerName = "becas-synth/pipeline"

// RunOptions override the family defaults for one run.
type RunOptions struct {
	// Year stamped on every record; zero uses the family year.
	Year int
	// Seed of the sampler; zero uses the family seed.
	Seed int64
}

// Service runs the synthesis pipeline for one family.
type Service struct {
	family     *family.Family
	engine     *classifier.Engine
	normalizer *normalizer.Normalizer
	skipped    map[dataset.Category]bool
	workers    int
	tolerance  float64
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewService compiles a family into a runnable pipeline.
func NewService(fam *family.Family, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	skipped := make(map[dataset.Category]bool)
	for _, c := range fam.Categories {
		if c.Skip {
			skipped[dataset.Category(c.Name)] = true
		}
	}
	return &Service{
		family:     fam,
		engine:     classifier.NewEngine(fam.KeywordSets(), fam.ClassifierOptions()),
		normalizer: normalizer.New(fam.Schemas(), fam.NormalizerOptions(), logger),
		skipped:    skipped,
		workers:    runtime.NumCPU(),
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}
}

// WithWorkers sets the classification and normalization pool size.
func (s *Service) WithWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithTolerance sets the relative reconciliation tolerance.
func (s *Service) WithTolerance(t float64) *Service {
	s.tolerance = t
	return s
}

// WithMetrics records every run on m.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// WithTracer replaces the global tracer.
func (s *Service) WithTracer(t trace.Tracer) *Service {
	s.tracer = t
	return s
}

// Family returns the family the service was built from.
func (s *Service) Family() *family.Family {
	return s.family
}

// outcome is what happened to one table.
type outcome struct {
	category     dataset.Category
	score        int
	skipped      bool
	unrecognized error
	result       *normalizer.Result
}

// Run extracts, expands and consolidates one document. Only fatal conditions
// return an error; everything else is counted in the dataset audit.
func (s *Service) Run(ctx context.Context, src document.Source, opts RunOptions) (*consolidator.Dataset, error) {
	start := time.Now()
	opts = s.resolve(opts)

	ctx, span := s.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("family", s.family.Name),
		attribute.Int("year", opts.Year),
		attribute.String("format", string(src.Format())),
	))
	defer span.End()

	audit := dataset.NewAudit()
	for range src.Pages() {
		audit.Pages++
	}

	tables, err := s.collect(ctx, src)
	if err != nil {
		return nil, s.fail(span, err)
	}

	outcomes, err := s.process(ctx, tables, opts.Year)
	if err != nil {
		return nil, s.fail(span, err)
	}
	records := s.tally(tables, outcomes, audit)

	ds, err := s.finish(ctx, records, audit, opts)
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.done(span, ds, start)
	return ds, nil
}

// RunRecords expands and consolidates canonical records that were extracted
// elsewhere, such as a canonical CSV.
func (s *Service) RunRecords(ctx context.Context, records []dataset.CanonicalRecord, opts RunOptions) (*consolidator.Dataset, error) {
	start := time.Now()
	opts = s.resolve(opts)

	ctx, span := s.tracer.Start(ctx, "pipeline.run_records", trace.WithAttributes(
		attribute.String("family", s.family.Name),
		attribute.Int("records", len(records)),
	))
	defer span.End()

	audit := dataset.NewAudit()
	ds, err := s.finish(ctx, records, audit, opts)
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.done(span, ds, start)
	return ds, nil
}

// RunCanonicalCSV reads pre-extracted aggregates of one category and runs
// them like RunRecords. Filtered rows are counted in the audit.
func (s *Service) RunCanonicalCSV(ctx context.Context, r io.Reader, category dataset.Category, opts RunOptions) (*consolidator.Dataset, error) {
	start := time.Now()
	opts = s.resolve(opts)

	ctx, span := s.tracer.Start(ctx, "pipeline.run_canonical", trace.WithAttributes(
		attribute.String("family", s.family.Name),
		attribute.String("category", string(category)),
	))
	defer span.End()

	res, err := s.normalizer.LoadCanonicalCSV(r, category, opts.Year)
	if err != nil {
		return nil, s.fail(span, err)
	}

	audit := dataset.NewAudit()
	audit.RowsSeen = res.TotalRows
	for _, e := range res.Errors {
		audit.Skip(e.Reason, 1)
	}
	ds, err := s.finish(ctx, res.Records, audit, opts)
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.done(span, ds, start)
	return ds, nil
}

func (s *Service) resolve(opts RunOptions) RunOptions {
	if opts.Year == 0 {
		opts.Year = s.family.Year
	}
	if opts.Seed == 0 {
		opts.Seed = s.family.Seed
	}
	return opts
}

func (s *Service) collect(ctx context.Context, src document.Source) ([]dataset.RawTable, error) {
	_, span := s.tracer.Start(ctx, "pipeline.load")
	defer span.End()

	var tables []dataset.RawTable
	for t := range src.Tables() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	span.SetAttributes(attribute.Int("tables", len(tables)))
	s.logger.Info("tables extracted", slog.Int("tables", len(tables)))
	return tables, nil
}

// process classifies and normalizes tables on a bounded pool. Each result is
// stored at its table's index.
func (s *Service) process(ctx context.Context, tables []dataset.RawTable, year int) ([]outcome, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.normalize")
	defer span.End()

	outcomes := make([]outcome, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, table := range tables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := s.processTable(table, year)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (s *Service) processTable(table dataset.RawTable, year int) (outcome, error) {
	c := s.engine.Classify(table)
	out := outcome{category: c.Category, score: c.Score}

	s.logger.Debug("table classified",
		slog.Int("page", table.Page),
		slog.Int("table", table.Index),
		slog.String("category", string(c.Category)),
		slog.Int("score", c.Score),
	)

	if c.Category == dataset.CategoryOther || s.skipped[c.Category] {
		out.skipped = true
		return out, nil
	}

	res, err := s.normalizer.Normalize(dataset.TaggedTable{RawTable: table, Category: c.Category, Score: c.Score}, year)
	if errors.Is(err, normalizer.ErrUnrecognizedLayout) {
		out.unrecognized = err
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("normalizing page %d table %d: %w", table.Page, table.Index, err)
	}
	out.result = res
	return out, nil
}

// tally folds table outcomes into the audit in document order.
func (s *Service) tally(tables []dataset.RawTable, outcomes []outcome, audit *dataset.Audit) []dataset.CanonicalRecord {
	var records []dataset.CanonicalRecord
	for i, out := range outcomes {
		table := tables[i]
		audit.Tables++
		if out.category == dataset.CategoryOther {
			audit.TablesOther++
		}
		audit.TablesByCategory[out.category]++

		switch {
		case out.skipped && out.category == dataset.CategoryOther:
		case out.skipped:
			audit.Skip(dataset.SkipExcludedCategory, len(table.Grid))
		case out.unrecognized != nil:
			audit.TablesUnrecognized++
			audit.Skip(dataset.SkipUnrecognizedRow, len(table.Grid))
			audit.Warn(dataset.WarningLayout, fmt.Sprintf("%s/%d/%d", out.category, table.Page, table.Index), out.unrecognized.Error())
			s.logger.Warn("table skipped",
				slog.Int("page", table.Page),
				slog.Int("table", table.Index),
				slog.String("category", string(out.category)),
				slog.Any("error", out.unrecognized),
			)
		default:
			audit.RowsSeen += out.result.TotalRows
			for _, e := range out.result.Errors {
				audit.Skip(e.Reason, 1)
			}
			records = append(records, out.result.Records...)
		}
	}
	s.logger.Info("tables normalized",
		slog.Int("tables", audit.Tables),
		slog.Int("other", audit.TablesOther),
		slog.Int("unrecognized", audit.TablesUnrecognized),
		slog.Int("records", len(records)),
		slog.Int("rows_skipped", audit.TotalSkipped()),
	)
	return records
}

func (s *Service) finish(ctx context.Context, records []dataset.CanonicalRecord, audit *dataset.Audit, opts RunOptions) (*consolidator.Dataset, error) {
	_, span := s.tracer.Start(ctx, "pipeline.expand")
	smp, err := sampler.New(opts.Seed, s.family.SampleRules(), s.family.Specs(), s.logger)
	if err != nil {
		span.End()
		return nil, err
	}
	groups, err := smp.ExpandAll(records)
	span.SetAttributes(attribute.Int("draws", smp.Stats().Draws))
	span.End()
	if err != nil {
		return nil, err
	}

	_, span = s.tracer.Start(ctx, "pipeline.consolidate")
	defer span.End()
	cons := consolidator.New(consolidator.Options{Year: opts.Year, Tolerance: s.tolerance}, s.logger)
	return cons.Consolidate(groups, audit), nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error("run failed", slog.String("family", s.family.Name), slog.Any("error", err))
	return err
}

func (s *Service) done(span trace.Span, ds *consolidator.Dataset, start time.Time) {
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.String("run_id", ds.RunID.String()),
		attribute.Int("rows", len(ds.Records)),
		attribute.Int("warnings", len(ds.Warnings)),
	)
	if s.metrics != nil {
		s.metrics.observe(ds.Audit, elapsed)
	}
	s.logger.Info("run completed",
		slog.String("run_id", ds.RunID.String()),
		slog.String("family", s.family.Name),
		slog.Int("year", ds.Year),
		slog.Int("rows", len(ds.Records)),
		slog.Duration("elapsed", elapsed),
	)
}
