// Package export writes consolidated datasets as CSV, as a workbook for the
// dashboards, and into Postgres.
package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/consolidator"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

// Row is one dataset record in the column layout the dashboards read.
type Row struct {
	NombreBeca            string `csv:"NombreBeca"`
	Institucion           string `csv:"Institucion"`
	Carrera               string `csv:"Carrera"`
	Lugar                 string `csv:"Lugar"`
	CategoriaDeBecas      string `csv:"CategoriaDeBecas"`
	AnioConvocatoria      string `csv:"Anio_Convocatoria"`
	Genero                string `csv:"Genero"`
	EstratoSocioeconomico string `csv:"EstratoSocioeconomico"`
	BecasSegunMigracion   string `csv:"BecasSegunMigracion"`
}

// Values returns the row in column order.
func (r Row) Values() []string {
	return []string{
		r.NombreBeca, r.Institucion, r.Carrera, r.Lugar, r.CategoriaDeBecas,
		r.AnioConvocatoria, r.Genero, r.EstratoSocioeconomico, r.BecasSegunMigracion,
	}
}

// NewRow flattens an expanded record.
func NewRow(rec dataset.ExpandedRecord) Row {
	return Row{
		NombreBeca:            rec.Get(dataset.FieldProgram).Text,
		Institucion:           rec.Get(dataset.FieldInstitution).Text,
		Carrera:               rec.Get(dataset.FieldCareer).Text,
		Lugar:                 rec.Get(dataset.FieldLocation).Text,
		CategoriaDeBecas:      rec.Get(dataset.FieldScholarshipCategory).Text,
		AnioConvocatoria:      rec.Get(dataset.FieldYear).Text,
		Genero:                rec.Get(dataset.FieldGender).Text,
		EstratoSocioeconomico: rec.Get(dataset.FieldStratum).Text,
		BecasSegunMigracion:   rec.Get(dataset.FieldMigration).Text,
	}
}

// Rows flattens every record of a dataset.
func Rows(ds *consolidator.Dataset) []Row {
	rows := make([]Row, len(ds.Records))
	for i, rec := range ds.Records {
		rows[i] = NewRow(rec)
	}
	return rows
}

// ProvenanceRow is one line of the provenance report.
type ProvenanceRow struct {
	Column       string `csv:"Columna"`
	Real         int    `csv:"Real"`
	Configured   int    `csv:"Configurado"`
	Synthetic    int    `csv:"Sintetico"`
	Missing      int    `csv:"Faltante"`
	PctReal      string `csv:"PorcentajeReal"`
	PctSynthetic string `csv:"PorcentajeSintetico"`
	Invented     string `csv:"Inventado"`
}

// ProvenanceRows summarizes column provenance in column order.
func ProvenanceRows(ds *consolidator.Dataset) []ProvenanceRow {
	rows := make([]ProvenanceRow, 0, len(ds.Provenance))
	for _, p := range ds.Provenance {
		invented := "no"
		if p.Synthetic > 0 {
			invented = "si"
		}
		rows = append(rows, ProvenanceRow{
			Column:       p.Header,
			Real:         p.Real,
			Configured:   p.Configured,
			Synthetic:    p.Synthetic,
			Missing:      p.Missing,
			PctReal:      percent(p.Share(dataset.ProvenanceReal)),
			PctSynthetic: percent(p.Share(dataset.ProvenanceSynthetic)),
			Invented:     invented,
		})
	}
	return rows
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64)
}

// WriteCSV writes the dataset with a header row.
func WriteCSV(w io.Writer, ds *consolidator.Dataset) error {
	rows := Rows(ds)
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write dataset csv: %w", err)
	}
	return nil
}

// WriteProvenanceCSV writes the per-column provenance report.
func WriteProvenanceCSV(w io.Writer, ds *consolidator.Dataset) error {
	rows := ProvenanceRows(ds)
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write provenance csv: %w", err)
	}
	return nil
}
