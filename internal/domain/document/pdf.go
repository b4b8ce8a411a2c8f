package document

import (
	"bytes"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

type pdfSource struct {
	reader *pdf.Reader
	opts   Options
}

func openPDF(data []byte, opts Options) (src *pdfSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("%w: %v", ErrUnparsable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if reader.NumPage() == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrUnparsable)
	}
	return &pdfSource{reader: reader, opts: opts}, nil
}

func (s *pdfSource) Format() Format { return FormatPDF }

func (s *pdfSource) Close() error { return nil }

// page extracts one page. Pages that cannot be read are reported as not ok.
func (s *pdfSource) page(num int) (p pdf.Page, text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Warn("page skipped",
				slog.Int("page", num),
				slog.Any("error", r),
			)
			ok = false
		}
	}()

	p = s.reader.Page(num)
	if p.V.IsNull() {
		s.opts.Logger.Warn("page skipped", slog.Int("page", num), slog.String("reason", "null page"))
		return p, "", false
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		s.opts.Logger.Warn("page skipped", slog.Int("page", num), slog.Any("error", err))
		return p, "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.opts.Logger.Debug("page skipped", slog.Int("page", num), slog.String("reason", "no text"))
		return p, "", false
	}
	return p, text, true
}

func (s *pdfSource) Pages() iter.Seq[Page] {
	return func(yield func(Page) bool) {
		for i := 1; i <= s.reader.NumPage(); i++ {
			_, text, ok := s.page(i)
			if !ok {
				continue
			}
			if !yield(Page{Number: i, Text: text}) {
				return
			}
		}
	}
}

func (s *pdfSource) Tables() iter.Seq[dataset.RawTable] {
	return func(yield func(dataset.RawTable) bool) {
		for i := 1; i <= s.reader.NumPage(); i++ {
			p, text, ok := s.page(i)
			if !ok {
				continue
			}
			rows, err := p.GetTextByRow()
			if err != nil {
				s.opts.Logger.Warn("page layout unreadable", slog.Int("page", i), slog.Any("error", err))
				continue
			}
			for _, t := range s.opts.Layout.Tables(i, linesFromRows(rows), text) {
				if !yield(t) {
					return
				}
			}
		}
	}
}

func linesFromRows(rows pdf.Rows) []Line {
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		line := Line{Y: float64(row.Position), Spans: make([]Span, 0, len(row.Content))}
		for _, t := range row.Content {
			line.Spans = append(line.Spans, Span{X: t.X, Text: t.S})
		}
		lines = append(lines, line)
	}
	return lines
}
