// Package csv reads delimited text files into in-memory tables.
//
// Parsing is lenient by policy: rows with too few fields are padded with
// nulls, rows with too many have the overflow merged into the last column,
// and rows the underlying reader rejects outright are skipped. Every such
// deviation is recorded as a RowIssue so callers can surface fidelity loss
// instead of silently absorbing it.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"csvlab/internal/dialect"
	"csvlab/pkg/table"
)

// ErrNoRows is returned when the input contains no records at all, not even
// a header line.
var ErrNoRows = errors.New("csv: no rows in input")

// EncodingError reports input that is not valid text under the declared
// encoding. Offset is the byte position of the first invalid sequence in the
// decoded stream.
type EncodingError struct {
	Encoding dialect.Encoding
	Offset   int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("csv: invalid %s byte sequence at offset %d", e.Encoding, e.Offset)
}

// IssueKind classifies a per-row parsing deviation.
type IssueKind string

const (
	IssueShortRow  IssueKind = "short_row"  // padded with nulls
	IssueLongRow   IssueKind = "long_row"   // overflow merged into last column
	IssueBadRecord IssueKind = "bad_record" // reader error, row skipped
)

// RowIssue records one leniency intervention. Line is 1-based and counts
// physical records including the header.
type RowIssue struct {
	Line   int       `json:"line"`
	Kind   IssueKind `json:"kind"`
	Fields int       `json:"fields"`
	Detail string    `json:"detail,omitempty"`
}

// Options controls a parse. The zero value is not useful; populate Dialect
// from detection or an explicit override.
type Options struct {
	Dialect dialect.Dialect

	// TrimSpace strips leading/trailing whitespace from every field.
	TrimSpace bool

	// MaxRows bounds the number of data rows read. 0 means unlimited.
	// The issue list and TotalRows still reflect only what was read.
	MaxRows int
}

// Result is a fully parsed table. Header always has one entry per column,
// generated names included; Rows are rectangular at len(Header).
type Result struct {
	Header []string    `json:"header"`
	Rows   []table.Row `json:"rows"`
	Issues []RowIssue  `json:"issues,omitempty"`

	// TotalRows counts data rows kept, equal to len(Rows).
	TotalRows int `json:"total_rows"`
}

// ParseFile reads and parses the file at path, decoding it according to
// opts.Dialect.Encoding first.
func ParseFile(ctx context.Context, path string, opts Options) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("csv: read %s: %w", path, err)
	}
	return ParseBytes(ctx, raw, opts)
}

// ParseBytes decodes raw into UTF-8 per the dialect encoding and parses it.
func ParseBytes(ctx context.Context, raw []byte, opts Options) (*Result, error) {
	decoded, err := opts.Dialect.Encoding.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("csv: decode %s: %w", opts.Dialect.Encoding, err)
	}
	if !utf8.Valid(decoded) {
		off := 0
		for off < len(decoded) {
			r, n := utf8.DecodeRune(decoded[off:])
			if r == utf8.RuneError && n == 1 {
				break
			}
			off += n
		}
		return nil, &EncodingError{Encoding: opts.Dialect.Encoding, Offset: off}
	}
	return Parse(ctx, strings.NewReader(string(decoded)), opts)
}

// Parse reads UTF-8 delimited text from r.
//
// Column count is fixed by the header when the dialect has one, otherwise by
// the first data row. Returns ErrNoRows for empty input. Reader-level record
// errors do not abort the parse; each becomes an IssueBadRecord and the row
// is dropped.
func Parse(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	delim := opts.Dialect.Delimiter
	if delim == 0 {
		delim = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	res := &Result{}
	var line int

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	width := 0
	if opts.Dialect.HasHeader {
		hdr, err := readRec()
		if err == io.EOF {
			return nil, ErrNoRows
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read header: %w", err)
		}
		res.Header = normalizeHeader(hdr)
		width = len(res.Header)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Issues = append(res.Issues, RowIssue{
				Line: line, Kind: IssueBadRecord, Fields: len(rec), Detail: recordErrDetail(err),
			})
			continue
		}

		if width == 0 {
			// Headerless input: first data row fixes the width.
			width = len(rec)
			res.Header = generatedHeader(width)
		}

		row := make(table.Row, width)
		switch {
		case len(rec) < width:
			res.Issues = append(res.Issues, RowIssue{Line: line, Kind: IssueShortRow, Fields: len(rec)})
			copy(row, rec)
		case len(rec) > width:
			res.Issues = append(res.Issues, RowIssue{Line: line, Kind: IssueLongRow, Fields: len(rec)})
			copy(row, rec[:width-1])
			row[width-1] = strings.Join(rec[width-1:], string(delim))
		default:
			copy(row, rec)
		}

		if opts.TrimSpace {
			for i, v := range row {
				if hasEdgeSpace(v) {
					row[i] = strings.TrimSpace(v)
				}
			}
		}

		res.Rows = append(res.Rows, row)
		if opts.MaxRows > 0 && len(res.Rows) >= opts.MaxRows {
			break
		}
	}

	if res.Header == nil {
		return nil, ErrNoRows
	}
	res.TotalRows = len(res.Rows)
	return res, nil
}

// normalizeHeader cleans raw header cells: BOM strip on the first, edge
// whitespace removed, empty names generated, duplicates disambiguated with a
// numeric suffix.
func normalizeHeader(hdr []string) []string {
	out := make([]string, len(hdr))
	used := make(map[string]bool, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		name := h
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", h, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func generatedHeader(width int) []string {
	out := make([]string, width)
	for i := range out {
		out[i] = fmt.Sprintf("column_%d", i+1)
	}
	return out
}

func recordErrDetail(err error) string {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}

func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[0] == '\t' || s[len(s)-1] == ' ' || s[len(s)-1] == '\t'
}
