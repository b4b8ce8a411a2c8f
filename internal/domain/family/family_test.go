package family

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/normalizer"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/sampler"
)

const minimal = `
name: test
year: 2021
categories:
  - name: department
    keywords: [departamento, región]
    key_field: location
    aliases:
      key: [departamento]
      total: [total]
attributes:
  - field: gender
    choices:
      - {value: Femenino, weight: 0.55}
      - {value: Masculino, weight: 0.45}
`

func TestLoadEmbedded(t *testing.T) {
	assert.Equal(t, []string{"memoria-2020", "memoria-2024"}, Names())

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			f, err := Load(name)
			require.NoError(t, err)
			assert.Equal(t, name, f.Name)
			assert.NotZero(t, f.Year)
			assert.NotZero(t, f.Seed)
			assert.NotEmpty(t, f.KeywordSets())
			assert.NotEmpty(t, f.Schemas())
		})
	}
}

func TestLoadUnknown(t *testing.T) {
	_, err := Load("memoria-1999")
	assert.ErrorIs(t, err, ErrInvalidFamily)
	assert.Contains(t, err.Error(), "memoria-2020")
}

func TestParseDefaults(t *testing.T) {
	f, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 3, f.Threshold)
	assert.Equal(t, 500, f.ContextChars)
	assert.Equal(t, []string{"total", "total general"}, f.TotalMarkers)
	assert.Equal(t, int64(2021), f.Seed)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test", f.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		message string
	}{
		{
			name:    "malformed yaml",
			doc:     "name: [",
			message: "invalid family",
		},
		{
			name: "unknown category",
			doc: `
name: x
year: 2020
categories:
  - name: planets
    keywords: [a]
`,
			message: `unknown category "planets"`,
		},
		{
			name: "other is reserved",
			doc: `
name: x
year: 2020
categories:
  - name: other
    keywords: [a]
    skip: true
`,
			message: "reserved",
		},
		{
			name: "unknown key field",
			doc: `
name: x
year: 2020
categories:
  - name: department
    keywords: [a]
    key_field: planet
    aliases: {key: [a]}
`,
			message: `unknown field "planet"`,
		},
		{
			name: "bad sample rule",
			doc: `
name: x
year: 2020
categories:
  - name: department
    keywords: [a]
    key_field: location
    aliases: {key: [a]}
    sample: {min: 10, cap: 5, scale: 100}
`,
			message: "cap >= min",
		},
		{
			name: "non-positive weight",
			doc: `
name: x
year: 2020
categories:
  - name: department
    keywords: [a]
    key_field: location
    aliases: {key: [a]}
attributes:
  - field: gender
    choices:
      - {value: F, weight: 0}
`,
			message: "must be positive",
		},
		{
			name: "synthetic year",
			doc: `
name: x
year: 2020
categories:
  - name: department
    keywords: [a]
    key_field: location
    aliases: {key: [a]}
attributes:
  - field: year
    choices:
      - {value: "2019", weight: 1}
`,
			message: "year cannot be synthesized",
		},
		{
			name: "unknown positional role",
			doc: `
name: x
year: 2020
categories:
  - name: department
    keywords: [a]
    key_field: location
    positional: [key, budget]
`,
			message: `unknown column role "budget"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFamily)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestSchemas(t *testing.T) {
	f, err := Load("memoria-2020")
	require.NoError(t, err)

	var dept normalizer.Schema
	for _, s := range f.Schemas() {
		if s.Category == dataset.CategoryDepartment {
			dept = s
		}
	}
	assert.Equal(t, dataset.FieldLocation, dept.KeyField)
	assert.Equal(t, "Beca 18", dept.Fixed[dataset.FieldProgram])
	assert.Equal(t, "Pregrado", dept.Fixed[dataset.FieldScholarshipCategory])
	assert.Contains(t, dept.Aliases[normalizer.RoleKey], "departamento")
	assert.Equal(t, []normalizer.Role{
		normalizer.RoleKey, normalizer.RoleNew, normalizer.RoleContinuing, normalizer.RoleTotal,
	}, dept.Positional)
}

func TestSkippedCategories(t *testing.T) {
	f, err := Load("memoria-2024")
	require.NoError(t, err)

	var classified, normalized []dataset.Category
	for _, s := range f.KeywordSets() {
		classified = append(classified, s.Category)
	}
	for _, s := range f.Schemas() {
		normalized = append(normalized, s.Category)
	}
	assert.Contains(t, classified, dataset.CategoryStratum)
	assert.NotContains(t, normalized, dataset.CategoryStratum)
	assert.NotContains(t, normalized, dataset.CategoryMigration)
}

func TestSampleRules(t *testing.T) {
	f, err := Load("memoria-2020")
	require.NoError(t, err)

	rules := f.SampleRules()
	assert.Equal(t, sampler.SampleRule{Min: 5, Cap: 15, Scale: 100}, rules[dataset.CategoryDepartment])
	assert.Equal(t, sampler.SampleRule{Min: 5, Cap: 20, Scale: 500}, rules[dataset.CategoryCareer])
	assert.Equal(t, sampler.SampleRule{Min: 3, Cap: 8, Scale: 10}, rules[dataset.CategoryCountry])
	assert.Equal(t, sampler.SampleRule{Min: 2, Cap: 5, Scale: 50}, rules[dataset.CategoryModality])
}

func TestMigrationConditions(t *testing.T) {
	f, err := Load("memoria-2020")
	require.NoError(t, err)

	var migration sampler.AttributeSpec
	for _, s := range f.Specs().Default {
		if s.Field == dataset.FieldMigration {
			migration = s
		}
	}
	require.NotNil(t, migration.Condition)

	row := func(location string) *dataset.ExpandedRecord {
		r := &dataset.ExpandedRecord{}
		r.Set(dataset.FieldLocation, location, dataset.ProvenanceReal)
		return r
	}

	choices, ok := migration.Condition(row("España"))
	require.True(t, ok)
	assert.Equal(t, []sampler.Choice{{Value: "Migró", Weight: 1}}, choices)

	choices, ok = migration.Condition(row("LIMA"))
	require.True(t, ok)
	assert.Equal(t, "No Migró", choices[0].Value)
	assert.InDelta(t, 0.8, choices[0].Weight, 1e-6)

	_, ok = migration.Condition(row("Junin"))
	assert.False(t, ok, "accent-folded domestic region is not foreign")

	_, ok = migration.Condition(row(""))
	assert.False(t, ok)
}

func TestCountryOverride(t *testing.T) {
	f, err := Load("memoria-2020")
	require.NoError(t, err)

	specs := f.Specs().For(dataset.CategoryCountry)
	var fields []dataset.Field
	for _, s := range specs {
		fields = append(fields, s.Field)
		if s.Field == dataset.FieldScholarshipCategory {
			require.Len(t, s.Choices, 2)
			assert.Equal(t, "Posgrado Maestría", s.Choices[0].Value)
		}
	}
	assert.Len(t, specs, len(f.Specs().Default))
	assert.Contains(t, fields, dataset.FieldScholarshipCategory)
}

func TestCompiledFamilyDrivesSampler(t *testing.T) {
	f, err := Load("memoria-2020")
	require.NoError(t, err)

	s, err := sampler.New(f.Seed, f.SampleRules(), f.Specs(), nil)
	require.NoError(t, err)

	rows, err := s.Expand(dataset.CanonicalRecord{
		Category:   dataset.CategoryDepartment,
		Key:        "Lima",
		Dimensions: map[dataset.Field]string{dataset.FieldLocation: "Lima", dataset.FieldProgram: "Beca 18", dataset.FieldScholarshipCategory: "Pregrado"},
		TotalCount: 1000,
		Year:       2020,
	})
	require.NoError(t, err)
	require.Len(t, rows, 10)
	for _, r := range rows {
		assert.Equal(t, dataset.ProvenanceReal, r.Get(dataset.FieldLocation).Provenance)
		assert.Equal(t, dataset.ProvenanceSynthetic, r.Get(dataset.FieldMigration).Provenance)
		assert.Contains(t, []string{"Migró", "No Migró"}, r.Get(dataset.FieldMigration).Text)
	}
}
