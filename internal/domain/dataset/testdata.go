package dataset

import (
	"strconv"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// Regions are Peru's departments plus Callao, as printed in the reports.
var Regions = []string{
	"Amazonas", "Áncash", "Apurímac", "Arequipa", "Ayacucho", "Cajamarca", "Callao",
	"Cusco", "Huancavelica", "Huánuco", "Ica", "Junín", "La Libertad", "Lambayeque",
	"Lima", "Loreto", "Madre de Dios", "Moquegua", "Pasco", "Piura", "Puno",
	"San Martín", "Tacna", "Tumbes", "Ucayali",
}

var testCareers = []string{
	"Ingeniería Civil", "Ingeniería de Sistemas", "Administración", "Contabilidad",
	"Enfermería", "Medicina", "Educación Inicial", "Derecho", "Agronomía",
}

var testCountries = []string{"España", "Argentina", "Brasil", "Chile", "México", "Estados Unidos", "Francia"}

// TestDataGenerator builds realistic canonical records and raw tables for tests.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a generator; seed 0 picks a random seed.
func NewTestDataGenerator(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// Region returns a random Peruvian region.
func (g *TestDataGenerator) Region() string {
	return g.faker.RandomString(Regions)
}

// Key returns a plausible dimension value for a category.
func (g *TestDataGenerator) Key(c Category) string {
	switch c {
	case CategoryCareer:
		return g.faker.RandomString(testCareers)
	case CategoryCountry:
		return g.faker.RandomString(testCountries)
	case CategoryInstitution:
		return "Universidad " + g.faker.LastName()
	case CategoryCredit:
		return "Crédito " + g.faker.Adjective()
	default:
		return g.Region()
	}
}

// CanonicalRecord generates one aggregate of a category.
func (g *TestDataGenerator) CanonicalRecord(c Category, keyField Field, year int) CanonicalRecord {
	newCount := g.faker.Number(0, 2000)
	continuing := g.faker.Number(0, 3000)
	key := g.Key(c)
	rec := CanonicalRecord{
		Category:        c,
		Key:             key,
		Dimensions:      map[Field]string{keyField: key},
		NewCount:        newCount,
		ContinuingCount: continuing,
		TotalCount:      newCount + continuing,
		Amount:          decimal.Zero,
		Year:            year,
		Page:            g.faker.Number(1, 200),
		Table:           g.faker.Number(1, 3),
	}
	if c == CategoryCredit {
		rec.Amount = decimal.NewFromFloat(g.faker.Price(10000, 5000000)).Round(2)
	}
	return rec
}

// CanonicalRecords generates count aggregates with increasing row numbers.
func (g *TestDataGenerator) CanonicalRecords(c Category, keyField Field, year, count int) []CanonicalRecord {
	out := make([]CanonicalRecord, count)
	for i := range out {
		out[i] = g.CanonicalRecord(c, keyField, year)
		out[i].Row = i + 2
	}
	return out
}

// DepartmentTable builds a raw department table with a header, rows data rows
// and a trailing total row.
func (g *TestDataGenerator) DepartmentTable(page, index, rows int) RawTable {
	grid := [][]string{{"Departamento", "Nuevos", "Continuadores", "Total"}}
	var sumNew, sumCont int
	for i := 0; i < rows; i++ {
		n, c := g.faker.Number(0, 900), g.faker.Number(0, 900)
		sumNew += n
		sumCont += c
		grid = append(grid, []string{Regions[i%len(Regions)], strconv.Itoa(n), strconv.Itoa(c), strconv.Itoa(n + c)})
	}
	grid = append(grid, []string{"Total", strconv.Itoa(sumNew), strconv.Itoa(sumCont), strconv.Itoa(sumNew + sumCont)})
	return RawTable{
		Page:    page,
		Index:   index,
		Grid:    grid,
		Context: "Beca 18: becarios por departamento de procedencia, región " + g.Region(),
	}
}
