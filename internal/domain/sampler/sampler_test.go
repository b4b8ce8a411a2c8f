package sampler

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

var domestic = map[string]bool{"Lima": true, "Cusco": true, "Piura": true, "Callao": true}

func migrationCondition(row *dataset.ExpandedRecord) ([]Choice, bool) {
	loc := row.Get(dataset.FieldLocation).Text
	switch {
	case loc == "":
		return nil, false
	case !domestic[loc]:
		return []Choice{{Value: "Migró", Weight: 1}}, true
	case loc == "Lima":
		return []Choice{{Value: "No Migró", Weight: 0.8}, {Value: "Migró", Weight: 0.2}}, true
	}
	return nil, false
}

func testSpecs() Specs {
	return Specs{
		Default: []AttributeSpec{
			{Field: dataset.FieldInstitution, Choices: []Choice{{"Universidad", 0.79}, {"Instituto superior tecnológico", 0.18}, {"Instituto superior pedagógico", 0.03}}},
			{Field: dataset.FieldCareer, Choices: []Choice{{"Ingeniería", 0.534}, {"Ciencias Sociales", 0.263}, {"Salud", 0.203}}},
			{Field: dataset.FieldGender, Choices: []Choice{{"Femenino", 0.55}, {"Masculino", 0.45}}},
			{Field: dataset.FieldStratum, Choices: []Choice{{"Pobre", 0.60}, {"Pobre Extremo", 0.25}, {"No pobre", 0.15}}},
			{
				Field:     dataset.FieldMigration,
				Choices:   []Choice{{"Migró", 0.25}, {"No Migró", 0.75}},
				Condition: migrationCondition,
			},
		},
		Overrides: map[dataset.Category][]AttributeSpec{
			dataset.CategoryCountry: {
				{Field: dataset.FieldScholarshipCategory, Choices: []Choice{{"Maestría", 0.82}, {"Doctorado", 0.18}}},
			},
		},
	}
}

func testRules() map[dataset.Category]SampleRule {
	return map[dataset.Category]SampleRule{
		dataset.CategoryDepartment: {Min: 5, Cap: 15, Scale: 100},
		dataset.CategoryCareer:     {Min: 5, Cap: 20, Scale: 500},
		dataset.CategoryCountry:    {Min: 3, Cap: 8, Scale: 10},
		dataset.CategoryModality:   {Min: 2, Cap: 5, Scale: 50},
	}
}

func departmentRecord(key string, total int) dataset.CanonicalRecord {
	return dataset.CanonicalRecord{
		Category: dataset.CategoryDepartment,
		Key:      key,
		Dimensions: map[dataset.Field]string{dataset.FieldLocation: key},
		Configured: map[dataset.Field]string{
			dataset.FieldProgram:             "Beca 18",
			dataset.FieldScholarshipCategory: "Pregrado",
		},
		TotalCount: total,
		Amount:     decimal.Zero,
		Year:       2020,
		Page:       104,
		Table:      1,
		Row:        2,
	}
}

func newSampler(t *testing.T, seed int64) *Sampler {
	t.Helper()
	s, err := New(seed, testRules(), testSpecs(), nil)
	require.NoError(t, err)
	return s
}

func TestSampleSize(t *testing.T) {
	dept := SampleRule{Min: 5, Cap: 15, Scale: 100}
	tests := []struct {
		name  string
		total int
		rule  SampleRule
		want  int
	}{
		{"small total uses min", 50, dept, 5},
		{"scaled", 1000, dept, 10},
		{"capped", 100000, dept, 15},
		{"zero total", 0, dept, 0},
		{"negative total", -3, dept, 0},
		{"country", 45, SampleRule{Min: 3, Cap: 8, Scale: 10}, 4},
		{"career", 12000, SampleRule{Min: 5, Cap: 20, Scale: 500}, 20},
		{"zero scale treated as one", 7, SampleRule{Min: 1, Cap: 10}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleSize(tt.total, tt.rule))
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(0, nil, testSpecs(), nil)
	assert.ErrorIs(t, err, ErrZeroSeed)

	_, err = New(1, nil, Specs{Default: []AttributeSpec{{Field: dataset.FieldGender}}}, nil)
	assert.ErrorIs(t, err, ErrNoChoices)

	_, err = New(1, nil, Specs{Default: []AttributeSpec{{Field: dataset.FieldYear, Choices: []Choice{{"2020", 1}}}}}, nil)
	assert.Error(t, err)
}

func TestExpand_Determinism(t *testing.T) {
	gen := dataset.NewTestDataGenerator(7)
	records := gen.CanonicalRecords(dataset.CategoryDepartment, dataset.FieldLocation, 2020, 25)

	run := func() []Group {
		s := newSampler(t, 2020)
		groups, err := s.ExpandAll(records)
		require.NoError(t, err)
		return groups
	}

	first, second := run(), run()
	assert.Equal(t, first, second)

	other, err := newSampler(t, 2021).ExpandAll(records)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestExpand_Conservation(t *testing.T) {
	gen := dataset.NewTestDataGenerator(11)
	s := newSampler(t, 99)

	for _, c := range []dataset.Category{dataset.CategoryDepartment, dataset.CategoryCareer, dataset.CategoryModality} {
		for _, rec := range gen.CanonicalRecords(c, dataset.FieldLocation, 2024, 20) {
			rows, err := s.Expand(rec)
			require.NoError(t, err)
			if rec.TotalCount <= 0 {
				assert.Empty(t, rows)
				continue
			}
			require.NotEmpty(t, rows)

			sum := 0.0
			for _, r := range rows {
				sum += r.RepresentedCount
			}
			unit := float64(rec.TotalCount) / float64(len(rows))
			assert.InDelta(t, float64(rec.TotalCount), sum, unit, "record %s", rec.ID())
			assert.InDelta(t, float64(rec.TotalCount), sum, 1e-6)
		}
	}
}

func TestExpand_Amounts(t *testing.T) {
	s := newSampler(t, 5)
	rec := departmentRecord("Crédito Talento", 30)
	rec.Category = dataset.CategoryCredit
	rec.Amount = decimal.RequireFromString("1000")

	rows, err := s.Expand(rec)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	total := decimal.Zero
	for _, r := range rows {
		assert.True(t, decimal.RequireFromString("200").Equal(r.RepresentedAmount))
		total = total.Add(r.RepresentedAmount)
	}
	assert.True(t, rec.Amount.Equal(total))
}

func TestExpand_Provenance(t *testing.T) {
	s := newSampler(t, 3)
	rows, err := s.Expand(departmentRecord("Cusco", 1000))
	require.NoError(t, err)
	require.Len(t, rows, 10)

	for _, r := range rows {
		assert.Equal(t, dataset.Value{Text: "Cusco", Provenance: dataset.ProvenanceReal}, r.Get(dataset.FieldLocation))
		assert.Equal(t, dataset.Value{Text: "2020", Provenance: dataset.ProvenanceReal}, r.Get(dataset.FieldYear))
		assert.Equal(t, dataset.Value{Text: "Beca 18", Provenance: dataset.ProvenanceConfigured}, r.Get(dataset.FieldProgram))
		for _, f := range []dataset.Field{dataset.FieldInstitution, dataset.FieldCareer, dataset.FieldGender, dataset.FieldStratum, dataset.FieldMigration} {
			v := r.Get(f)
			assert.Equal(t, dataset.ProvenanceSynthetic, v.Provenance, f)
			assert.NotEmpty(t, v.Text, f)
		}
		assert.Equal(t, "department/104/1/2", r.SourceID)
		assert.Equal(t, 100.0, r.RepresentedCount)
	}
}

func TestExpand_MissingFields(t *testing.T) {
	s, err := New(3, nil, Specs{Default: []AttributeSpec{{Field: dataset.FieldGender, Choices: []Choice{{"Femenino", 1}, {"Masculino", 1}}}}}, nil)
	require.NoError(t, err)

	rec := departmentRecord("Lima", 10)
	rec.Dimensions = map[dataset.Field]string{dataset.FieldLocation: "Lima"}
	rows, err := s.Expand(rec)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, dataset.ProvenanceMissing, rows[0].Get(dataset.FieldCareer).Provenance)
	assert.Equal(t, "", rows[0].Get(dataset.FieldCareer).Text)
	assert.Equal(t, dataset.ProvenanceSynthetic, rows[0].Get(dataset.FieldGender).Provenance)
}

func TestExpand_ConditionedSampling(t *testing.T) {
	const trials = 10000
	rules := map[dataset.Category]SampleRule{dataset.CategoryDepartment: {Min: trials, Cap: trials, Scale: 1}}

	t.Run("capital region follows configured weight", func(t *testing.T) {
		s, err := New(42, rules, testSpecs(), nil)
		require.NoError(t, err)
		rows, err := s.Expand(departmentRecord("Lima", trials))
		require.NoError(t, err)
		require.Len(t, rows, trials)

		stayed := 0
		for _, r := range rows {
			if r.Get(dataset.FieldMigration).Text == "No Migró" {
				stayed++
			}
		}
		assert.InDelta(t, 0.80, float64(stayed)/trials, 0.03)
	})

	t.Run("foreign location always migrates", func(t *testing.T) {
		s, err := New(42, rules, testSpecs(), nil)
		require.NoError(t, err)
		rows, err := s.Expand(departmentRecord("España", trials))
		require.NoError(t, err)
		for _, r := range rows {
			require.Equal(t, "Migró", r.Get(dataset.FieldMigration).Text)
		}
	})

	t.Run("other regions use the default weights", func(t *testing.T) {
		s, err := New(42, rules, testSpecs(), nil)
		require.NoError(t, err)
		rows, err := s.Expand(departmentRecord("Cusco", trials))
		require.NoError(t, err)

		migrated := 0
		for _, r := range rows {
			if r.Get(dataset.FieldMigration).Text == "Migró" {
				migrated++
			}
		}
		assert.InDelta(t, 0.25, float64(migrated)/trials, 0.03)
	})
}

func TestExpand_FixedDrawCount(t *testing.T) {
	// a foreign row takes the single-choice branch; the generator must still
	// advance so the next record sees the same stream as with a domestic row
	foreign := departmentRecord("España", 500)
	domesticRec := departmentRecord("Cusco", 500)
	next := departmentRecord("Piura", 500)

	a := newSampler(t, 8)
	_, err := a.Expand(foreign)
	require.NoError(t, err)
	rowsA, err := a.Expand(next)
	require.NoError(t, err)

	b := newSampler(t, 8)
	_, err = b.Expand(domesticRec)
	require.NoError(t, err)
	rowsB, err := b.Expand(next)
	require.NoError(t, err)

	assert.Equal(t, rowsA, rowsB)
	assert.Equal(t, a.Stats().Draws, b.Stats().Draws)
}

func TestExpand_EmptyAggregate(t *testing.T) {
	s := newSampler(t, 1)
	rows, err := s.Expand(departmentRecord("Tumbes", 0))
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, s.Stats().EmptyAggregates)
	assert.Equal(t, 0, s.Stats().Draws)
}

func TestSpecs_For(t *testing.T) {
	specs := testSpecs()

	dept := specs.For(dataset.CategoryDepartment)
	assert.Len(t, dept, 5)

	country := specs.For(dataset.CategoryCountry)
	require.Len(t, country, 6)
	assert.Equal(t, dataset.FieldScholarshipCategory, country[5].Field)

	specs.Overrides[dataset.CategoryCareer] = []AttributeSpec{
		{Field: dataset.FieldGender, Choices: []Choice{{"Femenino", 1}}},
	}
	career := specs.For(dataset.CategoryCareer)
	require.Len(t, career, 5)
	assert.Equal(t, dataset.FieldGender, career[2].Field)
	assert.Len(t, career[2].Choices, 1)
}

func TestExpand_CountryOverride(t *testing.T) {
	s := newSampler(t, 17)
	rec := dataset.CanonicalRecord{
		Category:   dataset.CategoryCountry,
		Key:        "España",
		Dimensions: map[dataset.Field]string{dataset.FieldLocation: "España", dataset.FieldProgram: "Beca Generación del Bicentenario"},
		TotalCount: 45,
		Amount:     decimal.Zero,
		Year:       2020,
	}
	rows, err := s.Expand(rec)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, r := range rows {
		v := r.Get(dataset.FieldScholarshipCategory)
		assert.Equal(t, dataset.ProvenanceSynthetic, v.Provenance)
		assert.Contains(t, []string{"Maestría", "Doctorado"}, v.Text)
		assert.Equal(t, "Migró", r.Get(dataset.FieldMigration).Text)
	}
	assert.False(t, math.IsNaN(rows[0].RepresentedCount))
}

func BenchmarkExpand(b *testing.B) {
	s, err := New(1, testRules(), testSpecs(), nil)
	if err != nil {
		b.Fatal(err)
	}
	rec := departmentRecord("Lima", 100000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Expand(rec); err != nil {
			b.Fatal(err)
		}
	}
}
