// Package sampler expands canonical aggregates into a bounded set of
// representative unit rows, filling attributes the source never reports with
// seeded weighted draws.
//
// A Sampler owns exactly one generator. Draws are consumed in record order and,
// within a row, in attribute declaration order, so the same seed and the same
// record sequence always reproduce the same rows. A Sampler must not be shared
// between goroutines.
package sampler

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

var (
	// ErrZeroSeed is returned for seed 0, which the generator would replace
	// with a random seed.
	ErrZeroSeed = errors.New("seed must be non-zero")
	// ErrNoChoices is returned when a draw has nothing to choose from.
	ErrNoChoices = errors.New("attribute has no choices")
)

// amountPlaces is the precision of represented amounts.
const amountPlaces = 6

// Choice is one weighted value of an attribute.
type Choice struct {
	Value  string
	Weight float32
}

// Condition returns an alternate choice list for a partially resolved row, or
// false when the default choices apply.
type Condition func(row *dataset.ExpandedRecord) ([]Choice, bool)

// AttributeSpec describes how one synthetic attribute is drawn.
type AttributeSpec struct {
	Field     dataset.Field
	Choices   []Choice
	Condition Condition
}

// SampleRule bounds the number of rows generated for an aggregate:
// min(Cap, max(Min, total/Scale)).
type SampleRule struct {
	Min   int
	Cap   int
	Scale int
}

// DefaultRule is used for categories without a configured rule.
var DefaultRule = SampleRule{Min: 5, Cap: 15, Scale: 100}

// SampleSize returns the number of rows for an aggregate total.
func SampleSize(total int, rule SampleRule) int {
	if total <= 0 {
		return 0
	}
	scale := rule.Scale
	if scale <= 0 {
		scale = 1
	}
	return min(rule.Cap, max(rule.Min, total/scale))
}

// Specs holds the attribute specs of a dataset. Overrides replace the default
// spec of the same field for one category, or are appended after the defaults.
type Specs struct {
	Default   []AttributeSpec
	Overrides map[dataset.Category][]AttributeSpec
}

// For returns the ordered spec list of a category.
func (s Specs) For(c dataset.Category) []AttributeSpec {
	over := s.Overrides[c]
	if len(over) == 0 {
		return s.Default
	}
	out := make([]AttributeSpec, 0, len(s.Default)+len(over))
	used := make(map[dataset.Field]bool, len(over))
	for _, d := range s.Default {
		replaced := false
		for _, o := range over {
			if o.Field == d.Field {
				out = append(out, o)
				used[o.Field] = true
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, d)
		}
	}
	for _, o := range over {
		if !used[o.Field] {
			out = append(out, o)
			used[o.Field] = true
		}
	}
	return out
}

// Stats counts what a sampler produced.
type Stats struct {
	Records         int
	Rows            int
	EmptyAggregates int
	Draws           int
}

// Group is the expansion of one canonical record.
type Group struct {
	Source dataset.CanonicalRecord
	Rows   []dataset.ExpandedRecord
}

// Sampler expands canonical records with one seeded generator.
type Sampler struct {
	faker  *gofakeit.Faker
	rules  map[dataset.Category]SampleRule
	specs  Specs
	stats  Stats
	logger *slog.Logger
}

// New creates a sampler. The generator is created here and owned by the
// sampler for its whole life.
func New(seed int64, rules map[dataset.Category]SampleRule, specs Specs, logger *slog.Logger) (*Sampler, error) {
	if seed == 0 {
		return nil, ErrZeroSeed
	}
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		faker:  gofakeit.NewUnlocked(seed),
		rules:  rules,
		specs:  specs,
		logger: logger,
	}, nil
}

func validateSpecs(specs Specs) error {
	check := func(list []AttributeSpec) error {
		for _, s := range list {
			if len(s.Choices) == 0 && s.Condition == nil {
				return fmt.Errorf("%w: %s", ErrNoChoices, s.Field)
			}
			if s.Field == dataset.FieldYear {
				return fmt.Errorf("year cannot be synthesized")
			}
		}
		return nil
	}
	if err := check(specs.Default); err != nil {
		return err
	}
	for _, list := range specs.Overrides {
		if err := check(list); err != nil {
			return err
		}
	}
	return nil
}

// Rule returns the sample rule of a category.
func (s *Sampler) Rule(c dataset.Category) SampleRule {
	if r, ok := s.rules[c]; ok {
		return r
	}
	return DefaultRule
}

// Stats returns the counters accumulated so far.
func (s *Sampler) Stats() Stats {
	return s.stats
}

// Expand generates the representative rows of one record. A record with no
// positive total yields no rows.
func (s *Sampler) Expand(rec dataset.CanonicalRecord) ([]dataset.ExpandedRecord, error) {
	s.stats.Records++
	n := SampleSize(rec.TotalCount, s.Rule(rec.Category))
	if n == 0 {
		s.stats.EmptyAggregates++
		s.logger.Debug("empty aggregate",
			slog.String("record", rec.ID()),
			slog.Int("total", rec.TotalCount),
		)
		return nil, nil
	}

	specs := s.specs.For(rec.Category)
	represented := float64(rec.TotalCount) / float64(n)
	amount := rec.Amount.DivRound(decimal.NewFromInt(int64(n)), amountPlaces)

	rows := make([]dataset.ExpandedRecord, n)
	for i := range rows {
		row := &rows[i]
		row.RepresentedCount = represented
		row.RepresentedAmount = amount
		row.SourceID = rec.ID()
		row.SourceCategory = rec.Category
		row.SourcePage = rec.Page

		for f, v := range rec.Configured {
			if v != "" {
				row.Set(f, v, dataset.ProvenanceConfigured)
			}
		}
		for f, v := range rec.Dimensions {
			if v != "" {
				row.Set(f, v, dataset.ProvenanceReal)
			}
		}
		if rec.Year != 0 {
			row.Set(dataset.FieldYear, strconv.Itoa(rec.Year), dataset.ProvenanceReal)
		}

		for _, spec := range specs {
			switch row.Get(spec.Field).Provenance {
			case dataset.ProvenanceReal, dataset.ProvenanceConfigured:
				continue
			}
			value, err := s.draw(spec, row)
			if err != nil {
				return nil, fmt.Errorf("record %s field %s: %w", rec.ID(), spec.Field, err)
			}
			row.Set(spec.Field, value, dataset.ProvenanceSynthetic)
		}

		for f := range row.Values {
			if row.Values[f].Provenance == "" {
				row.Values[f].Provenance = dataset.ProvenanceMissing
			}
		}
	}

	s.stats.Rows += n
	return rows, nil
}

// ExpandAll expands records in order.
func (s *Sampler) ExpandAll(records []dataset.CanonicalRecord) ([]Group, error) {
	groups := make([]Group, 0, len(records))
	for _, rec := range records {
		rows, err := s.Expand(rec)
		if err != nil {
			return nil, err
		}
		groups = append(groups, Group{Source: rec, Rows: rows})
	}
	s.logger.Info("records expanded",
		slog.Int("records", s.stats.Records),
		slog.Int("rows", s.stats.Rows),
		slog.Int("empty_aggregates", s.stats.EmptyAggregates),
	)
	return groups, nil
}

// draw consumes exactly one value from the generator whatever the number of
// choices, so the draw sequence does not depend on which condition matched.
func (s *Sampler) draw(spec AttributeSpec, row *dataset.ExpandedRecord) (string, error) {
	choices := spec.Choices
	if spec.Condition != nil {
		if alt, ok := spec.Condition(row); ok {
			choices = alt
		}
	}
	if len(choices) == 0 {
		return "", ErrNoChoices
	}
	s.stats.Draws++

	if len(choices) == 1 {
		s.faker.Float32Range(0, 1)
		return choices[0].Value, nil
	}

	options := make([]any, len(choices))
	weights := make([]float32, len(choices))
	for i, c := range choices {
		options[i] = c.Value
		weights[i] = c.Weight
	}
	picked, err := s.faker.Weighted(options, weights)
	if err != nil {
		return "", fmt.Errorf("weighted draw: %w", err)
	}
	value, ok := picked.(string)
	if !ok {
		return "", fmt.Errorf("weighted draw returned %T", picked)
	}
	return value, nil
}
