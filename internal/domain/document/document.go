// Package document loads annual report documents and exposes their pages and
// raw tables as lazy sequences. PDFs are read with positioned text; workbooks
// of previously extracted tables are read sheet by sheet.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
)

var (
	// ErrDocumentUnavailable is returned when the document cannot be fetched.
	ErrDocumentUnavailable = errors.New("document unavailable")
	// ErrUnparsable is returned when the document bytes cannot be opened.
	ErrUnparsable = errors.New("document unparsable")
	// ErrUnsupportedFormat is returned for bytes that are neither PDF nor workbook.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Format is a detected document format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatWorkbook Format = "xlsx"
)

var (
	pdfMagic = []byte("%PDF")
	zipMagic = []byte("PK\x03\x04")
)

// Sniff detects the format from the leading bytes.
func Sniff(data []byte) (Format, error) {
	trimmed := bytes.TrimLeft(data, "\xef\xbb\xbf \t\r\n")
	switch {
	case bytes.HasPrefix(trimmed, pdfMagic):
		return FormatPDF, nil
	case bytes.HasPrefix(data, zipMagic):
		return FormatWorkbook, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Page is one page of extracted text.
type Page struct {
	Number int
	Text   string
}

// Source is an opened document. Both sequences are finite and restartable:
// every call walks the document again from the first page.
type Source interface {
	Format() Format
	Pages() iter.Seq[Page]
	Tables() iter.Seq[dataset.RawTable]
	Close() error
}

// Options configure how a document is opened.
type Options struct {
	Layout Layout
	Logger *slog.Logger
}

// Open sniffs data and opens the matching source.
func Open(data []byte, opts Options) (Source, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Layout = opts.Layout.withDefaults()

	format, err := Sniff(data)
	if err != nil {
		return nil, err
	}
	if format == FormatPDF {
		src, err := openPDF(data, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := openWorkbook(data, opts)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Fetch reads a document from an http(s) URL or a local path. Fetching is not
// retried; any failure wraps ErrDocumentUnavailable.
func Fetch(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		data, err := os.ReadFile(strings.TrimPrefix(location, "file://"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDocumentUnavailable, err)
		}
		return data, nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentUnavailable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrDocumentUnavailable, location, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrDocumentUnavailable, err)
	}
	return data, nil
}
