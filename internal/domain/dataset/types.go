// Package dataset defines the records that flow through the synthesis pipeline:
// raw tables from the document, canonical aggregates, expanded unit rows and the
// audit counters that travel with them.
package dataset

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Category tags a raw table with the domain dimension it reports on.
type Category string

const (
	CategoryDepartment  Category = "department"
	CategoryInstitution Category = "institution"
	CategoryCareer      Category = "career"
	CategoryModality    Category = "modality"
	CategoryCountry     Category = "country"
	CategoryCredit      Category = "credit"
	CategoryGender      Category = "gender"
	CategoryStratum     Category = "stratum"
	CategoryMigration   Category = "migration"
	CategoryOther       Category = "other"
)

// Categories lists the closed category set, other last.
var Categories = []Category{
	CategoryDepartment,
	CategoryInstitution,
	CategoryCareer,
	CategoryModality,
	CategoryCountry,
	CategoryCredit,
	CategoryGender,
	CategoryStratum,
	CategoryMigration,
	CategoryOther,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Field identifies one column of the consolidated dataset. The numeric order is
// the fixed output column order.
type Field int

const (
	FieldProgram Field = iota
	FieldInstitution
	FieldCareer
	FieldLocation
	FieldScholarshipCategory
	FieldYear
	FieldGender
	FieldStratum
	FieldMigration

	NumFields int = iota
)

var fieldNames = [NumFields]string{
	"program",
	"institution",
	"career",
	"location",
	"scholarship_category",
	"year",
	"gender",
	"stratum",
	"migration",
}

// fieldHeaders are the column names downstream dashboards expect.
var fieldHeaders = [NumFields]string{
	"NombreBeca",
	"Institucion",
	"Carrera",
	"Lugar",
	"CategoriaDeBecas",
	"Anio_Convocatoria",
	"Genero",
	"EstratoSocioeconomico",
	"BecasSegunMigracion",
}

// Fields returns all fields in column order.
func Fields() []Field {
	out := make([]Field, NumFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

func (f Field) String() string {
	if f < 0 || int(f) >= NumFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Header returns the export column name of the field.
func (f Field) Header() string {
	if f < 0 || int(f) >= NumFields {
		return ""
	}
	return fieldHeaders[f]
}

// ParseField resolves a field from its configuration name.
func ParseField(s string) (Field, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

// MarshalText encodes the field by name, so JSON summaries stay readable.
func (f Field) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= NumFields {
		return nil, fmt.Errorf("unknown field %d", int(f))
	}
	return []byte(fieldNames[f]), nil
}

func (f *Field) UnmarshalText(text []byte) error {
	parsed, err := ParseField(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Provenance marks where a value came from.
type Provenance string

const (
	ProvenanceReal       Provenance = "real"
	// ProvenanceConfigured marks a constant the family configuration assigns
	// to every row of a category. The document does not report it per row.
	ProvenanceConfigured Provenance = "configured"
	ProvenanceSynthetic  Provenance = "synthetic"
	ProvenanceMissing    Provenance = "missing"
)

// RawTable is a grid of cells extracted from one page of the source document.
type RawTable struct {
	Page    int
	Index   int
	Grid    [][]string
	Context string
}

// Header returns the first row of the grid, or nil for an empty table.
func (t RawTable) Header() []string {
	if len(t.Grid) == 0 {
		return nil
	}
	return t.Grid[0]
}

// Width returns the widest row length.
func (t RawTable) Width() int {
	w := 0
	for _, row := range t.Grid {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// TaggedTable is a raw table plus the category the classifier assigned.
type TaggedTable struct {
	RawTable
	Category Category
	Score    int
}

// CanonicalRecord is one normalized aggregate row extracted from a table.
type CanonicalRecord struct {
	Category        Category
	Key             string
	Dimensions      map[Field]string
	// Configured holds family constants for the category, never read from
	// the table itself.
	Configured      map[Field]string
	NewCount        int
	ContinuingCount int
	TotalCount      int
	Amount          decimal.Decimal
	Year            int
	Page            int
	Table           int
	Row             int
}

// ID identifies the record within one run.
func (r CanonicalRecord) ID() string {
	return fmt.Sprintf("%s/%d/%d/%d", r.Category, r.Page, r.Table, r.Row)
}

// Value is one cell of an expanded record.
type Value struct {
	Text       string
	Provenance Provenance
}

// ExpandedRecord is one representative unit row produced by the sampler.
type ExpandedRecord struct {
	Values            [NumFields]Value
	RepresentedCount  float64
	RepresentedAmount decimal.Decimal
	SourceID          string
	SourceCategory    Category
	SourcePage        int
}

// Get returns the value of a field.
func (r ExpandedRecord) Get(f Field) Value {
	return r.Values[f]
}

// Set stores a value for a field.
func (r *ExpandedRecord) Set(f Field, text string, p Provenance) {
	r.Values[f] = Value{Text: text, Provenance: p}
}
