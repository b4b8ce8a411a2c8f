package classifier

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

func testSets() []KeywordSet {
	return []KeywordSet{
		{Category: dataset.CategoryDepartment, Keywords: []string{"departamento", "región", "lima", "cusco", "arequipa", "piura"}},
		{Category: dataset.CategoryInstitution, Keywords: []string{"universidad", "instituto", "IES", "institución educativa"}},
		{Category: dataset.CategoryCareer, Keywords: []string{"carrera", "ingeniería", "medicina", "derecho", "administración"}},
		{Category: dataset.CategoryMigration, Keywords: []string{"migración", "migró", "traslado", "movilidad"}},
	}
}

func TestEngine_Classify(t *testing.T) {
	engine := NewEngine(testSets(), Options{})

	t.Run("department table by header and context", func(t *testing.T) {
		table := dataset.RawTable{
			Grid: [][]string{
				{"Departamento", "Nuevos", "Continuadores", "Total"},
				{"Lima", "800", "200", "1000"},
			},
			Context: "Becarios de Beca 18 por región de procedencia: Cusco, Arequipa y Piura.",
		}
		got := engine.Classify(table)
		assert.Equal(t, dataset.CategoryDepartment, got.Category)
		// departamento, lima, región, cusco, arequipa, piura
		assert.Equal(t, 6, got.Score)
		assert.Equal(t, 6, got.Scores[dataset.CategoryDepartment])
	})

	t.Run("accents are folded on both sides", func(t *testing.T) {
		got := engine.ClassifyText("REGION de origen, DEPARTAMENTO de Lima")
		assert.Equal(t, dataset.CategoryDepartment, got.Category)
		assert.Equal(t, 3, got.Score)
	})

	t.Run("repeated keyword counts once", func(t *testing.T) {
		got := engine.ClassifyText("carrera carrera carrera medicina")
		assert.Equal(t, dataset.CategoryOther, got.Category)
		assert.Equal(t, 2, got.Score)
	})

	t.Run("no keywords", func(t *testing.T) {
		got := engine.ClassifyText("cuadro sin relación alguna")
		assert.Equal(t, dataset.CategoryOther, got.Category)
		assert.Equal(t, 0, got.Score)
	})
}

func TestEngine_Threshold(t *testing.T) {
	engine := NewEngine(testSets(), Options{Threshold: 3})

	// exactly two hits against every category
	text := "departamento lima universidad instituto carrera medicina migración traslado"
	got := engine.ClassifyText(text)

	assert.Equal(t, dataset.CategoryOther, got.Category)
	assert.Equal(t, 2, got.Score)
	for _, set := range testSets() {
		assert.Equal(t, 2, got.Scores[set.Category], set.Category)
	}
}

func TestEngine_TieBreak(t *testing.T) {
	t.Run("first declared category wins", func(t *testing.T) {
		engine := NewEngine(testSets(), Options{Threshold: 3})
		got := engine.ClassifyText("departamento lima cusco / carrera medicina derecho")
		assert.Equal(t, dataset.CategoryDepartment, got.Category)
		assert.Equal(t, 3, got.Score)
	})

	t.Run("declaration order decides, not the name", func(t *testing.T) {
		sets := testSets()
		sets[0], sets[2] = sets[2], sets[0]
		engine := NewEngine(sets, Options{Threshold: 3})
		got := engine.ClassifyText("departamento lima cusco / carrera medicina derecho")
		assert.Equal(t, dataset.CategoryCareer, got.Category)
	})
}

func TestEngine_SharedKeyword(t *testing.T) {
	sets := []KeywordSet{
		{Category: dataset.CategoryDepartment, Keywords: []string{"lima", "total"}},
		{Category: dataset.CategoryCountry, Keywords: []string{"total", "país"}},
	}
	engine := NewEngine(sets, Options{Threshold: 1})
	assert.Equal(t, 3, engine.PatternCount())

	got := engine.ClassifyText("total")
	assert.Equal(t, 1, got.Scores[dataset.CategoryDepartment])
	assert.Equal(t, 1, got.Scores[dataset.CategoryCountry])
	assert.Equal(t, dataset.CategoryDepartment, got.Category)
}

func TestEngine_ContextWindow(t *testing.T) {
	engine := NewEngine(testSets(), Options{Threshold: 3, ContextChars: 20})
	table := dataset.RawTable{
		Grid:    [][]string{{"Nombre", "Cantidad"}},
		Context: strings.Repeat("x", 20) + " departamento lima cusco",
	}
	got := engine.Classify(table)
	assert.Equal(t, dataset.CategoryOther, got.Category)
	assert.Equal(t, 0, got.Score)

	wide := NewEngine(testSets(), Options{Threshold: 3, ContextChars: 100})
	assert.Equal(t, dataset.CategoryDepartment, wide.Classify(table).Category)
}

func TestEngine_HeaderRowsOnly(t *testing.T) {
	engine := NewEngine(testSets(), Options{Threshold: 2, HeaderRows: 1})
	table := dataset.RawTable{
		Grid: [][]string{
			{"Nombre", "Cantidad"},
			{"Lima", "10"},
			{"Cusco", "5"},
		},
	}
	assert.Equal(t, dataset.CategoryOther, engine.Classify(table).Category)
	assert.Equal(t, "nombre cantidad", engine.Text(table))
}

func TestEngine_Pure(t *testing.T) {
	engine := NewEngine(testSets(), Options{})
	table := dataset.RawTable{
		Grid:    [][]string{{"Universidad", "Instituto", "Total"}},
		Context: "Becarios por institución educativa",
	}
	first := engine.Classify(table)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, engine.Classify(table))
	}
}

func TestEngine_Concurrent(t *testing.T) {
	engine := NewEngine(testSets(), Options{})
	var wg sync.WaitGroup
	results := make([]Classification, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.ClassifyText("departamento región lima cusco")
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, dataset.CategoryDepartment, r.Category)
		assert.Equal(t, 4, r.Score)
	}
}

func TestEngine_ClassifyBatch(t *testing.T) {
	engine := NewEngine(testSets(), Options{})
	tables := []dataset.RawTable{
		{Context: "departamento región lima"},
		{Context: "nada"},
		{Context: "universidad instituto IES"},
	}
	got := engine.ClassifyBatch(tables)
	require.Len(t, got, 3)
	assert.Equal(t, dataset.CategoryDepartment, got[0].Category)
	assert.Equal(t, dataset.CategoryOther, got[1].Category)
	assert.Equal(t, dataset.CategoryInstitution, got[2].Category)
}

func TestEngine_Empty(t *testing.T) {
	engine := NewEngine(nil, Options{})
	assert.True(t, engine.IsEmpty())
	assert.Equal(t, dataset.CategoryOther, engine.ClassifyText("departamento").Category)
}

func BenchmarkEngine_Classify(b *testing.B) {
	sets := testSets()
	for i := 0; i < 200; i++ {
		sets[i%len(sets)].Keywords = append(sets[i%len(sets)].Keywords, fmt.Sprintf("kw%03d", i))
	}
	engine := NewEngine(sets, Options{})
	table := dataset.RawTable{
		Grid:    [][]string{{"Departamento", "Nuevos", "Continuadores", "Total"}},
		Context: strings.Repeat("Beca 18 región Lima Cusco ", 40),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Classify(table)
	}
}
