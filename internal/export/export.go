// Package export renders row sets back into delimited text.
//
// Under the auto quoting policy a field is quoted exactly when it contains
// the delimiter, a double quote, or a newline, and quotes are escaped by
// doubling. That matches the parser's conventions, so export-then-reimport
// is lossless for anything the parser itself produced. The never policy is
// deliberately lossy and writes fields raw.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"csvlab/internal/dialect"
	"csvlab/pkg/table"
)

// ErrColumnMismatch is returned when a row carries more fields than the
// supplied header has columns.
var ErrColumnMismatch = errors.New("export: row wider than header")

// QuoteMode selects the field quoting policy.
type QuoteMode string

const (
	QuoteAuto   QuoteMode = "auto"
	QuoteAlways QuoteMode = "always"
	QuoteNever  QuoteMode = "never"
)

// Options controls formatting. Zero values mean comma, auto quoting, UTF-8,
// no header line.
type Options struct {
	Delimiter      rune
	IncludeHeaders bool
	Quote          QuoteMode
	Encoding       dialect.Encoding
}

func (o *Options) fill() {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Quote == "" {
		o.Quote = QuoteAuto
	}
	if o.Encoding == "" {
		o.Encoding = dialect.EncodingUTF8
	}
}

// Write renders the rows to w and returns the number of bytes written.
// Short rows are padded with empty fields to the header width; wider rows
// fail with ErrColumnMismatch before anything is written for them.
func Write(w io.Writer, header []string, rows []table.Row, opts Options) (int, error) {
	opts.fill()

	var b strings.Builder
	if opts.IncludeHeaders {
		writeRecord(&b, header, opts)
	}
	width := len(header)
	for i, r := range rows {
		if len(r) > width {
			return 0, fmt.Errorf("%w: row %d has %d fields, header has %d",
				ErrColumnMismatch, i+1, len(r), width)
		}
		rec := make([]string, width)
		copy(rec, r)
		writeRecord(&b, rec, opts)
	}

	out, err := opts.Encoding.Encode([]byte(b.String()))
	if err != nil {
		return 0, fmt.Errorf("export: encode %s: %w", opts.Encoding, err)
	}
	n, err := w.Write(out)
	if err != nil {
		return n, fmt.Errorf("export: write: %w", err)
	}
	return n, nil
}

// WriteFile renders the rows into the file at path, creating or truncating
// it.
func WriteFile(path string, header []string, rows []table.Row, opts Options) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export: create %s: %w", path, err)
	}
	n, werr := Write(f, header, rows, opts)
	if cerr := f.Close(); werr == nil && cerr != nil {
		return n, fmt.Errorf("export: close %s: %w", path, cerr)
	}
	return n, werr
}

func writeRecord(b *strings.Builder, fields []string, opts Options) {
	for i, f := range fields {
		if i > 0 {
			b.WriteRune(opts.Delimiter)
		}
		writeField(b, f, opts)
	}
	b.WriteByte('\n')
}

func writeField(b *strings.Builder, f string, opts Options) {
	switch opts.Quote {
	case QuoteNever:
		b.WriteString(f)
	case QuoteAlways:
		quote(b, f)
	default:
		if needsQuoting(f, opts.Delimiter) {
			quote(b, f)
		} else {
			b.WriteString(f)
		}
	}
}

func needsQuoting(f string, delim rune) bool {
	return strings.ContainsRune(f, delim) ||
		strings.ContainsAny(f, "\"\n\r")
}

func quote(b *strings.Builder, f string) {
	b.WriteByte('"')
	b.WriteString(strings.ReplaceAll(f, `"`, `""`))
	b.WriteByte('"')
}
