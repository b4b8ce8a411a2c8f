package document

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

// sheetName matches sheets such as "Pagina_104_Tabla_1" or "Page_12_Table_2".
var sheetName = regexp.MustCompile(`(?i)^\s*(?:p[aá]gina|page)[_ ]?(\d+)[_ ]?(?:tabla|table)[_ ]?(\d+)\s*$`)

// textSheets hold page texts as rows of (page, text).
var textSheets = []string{"texto", "text"}

type workbookSource struct {
	file   *excelize.File
	opts   Options
	sheets []string
	texts  map[int]string
}

func openWorkbook(data []byte, opts Options) (*workbookSource, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	src := &workbookSource{file: f, opts: opts, texts: make(map[int]string)}
	for _, name := range f.GetSheetList() {
		if slices.Contains(textSheets, dataset.Fold(name)) {
			if err := src.loadTexts(name); err != nil {
				f.Close()
				return nil, err
			}
			continue
		}
		src.sheets = append(src.sheets, name)
	}
	return src, nil
}

func (s *workbookSource) loadTexts(sheet string) error {
	rows, err := s.file.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("%w: sheet %s: %v", ErrUnparsable, sheet, err)
	}
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		page, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			if i > 0 {
				s.opts.Logger.Warn("page text row ignored", slog.String("sheet", sheet), slog.Int("row", i+1))
			}
			continue
		}
		if s.texts[page] != "" {
			s.texts[page] += "\n"
		}
		s.texts[page] += row[1]
	}
	return nil
}

func (s *workbookSource) Format() Format { return FormatWorkbook }

func (s *workbookSource) Close() error { return s.file.Close() }

// position returns the page and table number a sheet stands for.
func (s *workbookSource) position(i int, name string) (page, index int) {
	if m := sheetName.FindStringSubmatch(name); m != nil {
		page, _ = strconv.Atoi(m[1])
		index, _ = strconv.Atoi(m[2])
		return page, index
	}
	return i + 1, 1
}

func (s *workbookSource) Pages() iter.Seq[Page] {
	return func(yield func(Page) bool) {
		seen := make(map[int]bool, len(s.texts))
		var numbers []int
		for n := range s.texts {
			seen[n] = true
			numbers = append(numbers, n)
		}
		for i, name := range s.sheets {
			if n, _ := s.position(i, name); !seen[n] {
				seen[n] = true
				numbers = append(numbers, n)
			}
		}
		slices.Sort(numbers)
		for _, n := range numbers {
			if !yield(Page{Number: n, Text: s.texts[n]}) {
				return
			}
		}
	}
}

func (s *workbookSource) Tables() iter.Seq[dataset.RawTable] {
	return func(yield func(dataset.RawTable) bool) {
		for i, name := range s.sheets {
			rows, err := s.file.GetRows(name)
			if err != nil {
				s.opts.Logger.Warn("sheet skipped", slog.String("sheet", name), slog.Any("error", err))
				continue
			}
			grid := trimGrid(rows)
			if len(grid) == 0 {
				continue
			}
			page, index := s.position(i, name)
			table := dataset.RawTable{
				Page:    page,
				Index:   index,
				Grid:    grid,
				Context: s.texts[page],
			}
			if !yield(table) {
				return
			}
		}
	}
}

// trimGrid drops blank rows from the end of a sheet.
func trimGrid(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && blank(rows[end-1]) {
		end--
	}
	return rows[:end]
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
