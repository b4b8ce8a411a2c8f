package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/consolidator"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/pkg/money"
)

const (
	SheetProvenance     = "Procedencia"
	SheetReconciliation = "Conciliacion"
	SheetAudit          = "Auditoria"
)

// DataSheet returns the name of the records sheet for a year.
func DataSheet(year int) string {
	return "Becas_" + strconv.Itoa(year)
}

// WriteWorkbook writes the records, the provenance report, the group
// reconciliation and the audit counters as one workbook.
func WriteWorkbook(w io.Writer, ds *consolidator.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	data := DataSheet(ds.Year)
	if err := f.SetSheetName("Sheet1", data); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	for _, name := range []string{SheetProvenance, SheetReconciliation, SheetAudit} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{data, headerOf(dataset.Fields()), recordRows(ds)},
		{SheetProvenance, []any{"Columna", "Real", "Configurado", "Sintetico", "Faltante", "PorcentajeReal", "PorcentajeSintetico", "Inventado"}, provenanceRows(ds)},
		{SheetReconciliation, []any{"Origen", "Categoria", "Clave", "Filas", "Esperado", "Representado", "MontoEsperado", "MontoRepresentado", "Cuadra"}, reconciliationRows(ds)},
		{SheetAudit, []any{"Indicador", "Valor"}, auditRows(ds)},
	}

	for _, sh := range sheets {
		if err := writeSheet(f, sh.name, header, sh.header, sh.rows); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, style int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style %s header: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", name, i+2, err)
		}
	}
	return nil
}

func headerOf(fields []dataset.Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f.Header()
	}
	return out
}

func recordRows(ds *consolidator.Dataset) [][]any {
	rows := make([][]any, len(ds.Records))
	for i, rec := range ds.Records {
		row := make([]any, dataset.NumFields)
		for j, v := range NewRow(rec).Values() {
			row[j] = v
		}
		rows[i] = row
	}
	return rows
}

func provenanceRows(ds *consolidator.Dataset) [][]any {
	var rows [][]any
	for _, p := range ProvenanceRows(ds) {
		rows = append(rows, []any{p.Column, p.Real, p.Configured, p.Synthetic, p.Missing, p.PctReal, p.PctSynthetic, p.Invented})
	}
	return rows
}

func reconciliationRows(ds *consolidator.Dataset) [][]any {
	var rows [][]any
	for _, r := range ds.Reconciliation {
		ok := "si"
		if !r.OK {
			ok = "no"
		}
		rows = append(rows, []any{
			r.SourceID, string(r.Category), r.Key, r.Rows, r.ExpectedCount,
			strconv.FormatFloat(r.RepresentedCount, 'f', 2, 64),
			money.FormatPEN(r.ExpectedAmount), money.FormatPEN(r.RepresentedAmount), ok,
		})
	}
	return rows
}

func auditRows(ds *consolidator.Dataset) [][]any {
	a := ds.Audit
	if a == nil {
		a = dataset.NewAudit()
	}
	rows := [][]any{
		{"run_id", ds.RunID.String()},
		{"anio", ds.Year},
		{"paginas", a.Pages},
		{"tablas", a.Tables},
		{"tablas_otras", a.TablesOther},
		{"tablas_no_reconocidas", a.TablesUnrecognized},
		{"filas_leidas", a.RowsSeen},
		{"filas_omitidas", a.TotalSkipped()},
	}
	for _, reason := range a.SkipReasons() {
		rows = append(rows, []any{"omitidas_" + string(reason), a.RowsSkipped[reason]})
	}
	for _, cat := range dataset.Categories {
		if n := a.TablesByCategory[cat]; n > 0 {
			rows = append(rows, []any{"tablas_" + string(cat), n})
		}
	}
	rows = append(rows,
		[]any{"registros_canonicos", a.Records},
		[]any{"agregados_vacios", a.EmptyAggregates},
		[]any{"filas_generadas", a.ExpandedRows},
		[]any{"advertencias", len(a.Warnings)},
	)
	for _, w := range a.Warnings {
		rows = append(rows, []any{"advertencia_" + string(w.Kind), w.SourceID + ": " + w.Message})
	}
	return rows
}
