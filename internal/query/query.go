// Package query evaluates filter/sort/page requests against an immutable
// in-memory table.
//
// Evaluation order is filters, then sort, then pagination. Identical queries
// against unchanged rows always produce identical pages: filtering preserves
// row order and the sort is stable, so there is no hidden tie-break
// nondeterminism.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"csvlab/internal/infer"
	"csvlab/pkg/table"
)

// ErrInvalidQuery covers structurally bad queries: unknown columns, a page
// below 1, or an out-of-range page size. Wrapped errors carry the reason.
var ErrInvalidQuery = errors.New("query: invalid query")

// MaxPageSize bounds per-call work.
const MaxPageSize = 10000

// DefaultPageSize applies when a query leaves PageSize at zero.
const DefaultPageSize = 100

// Op is the closed filter operator set.
type Op string

const (
	OpContains Op = "contains" // default: case-insensitive substring
	OpEquals   Op = "equals"
	OpGT       Op = "gt"
	OpLT       Op = "lt"
	OpGTE      Op = "gte"
	OpLTE      Op = "lte"
)

func (o Op) valid() bool {
	switch o {
	case "", OpContains, OpEquals, OpGT, OpLT, OpGTE, OpLTE:
		return true
	}
	return false
}

// Filter is one column predicate. The zero Op means OpContains. Matching is
// case-insensitive unless CaseSensitive is set; comparison operators use the
// column's inferred type to pick numeric, date, or string ordering.
type Filter struct {
	Op            Op     `json:"op,omitempty"`
	Value         string `json:"value"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
}

// Sort designates the ordering column. Nulls sort last regardless of
// direction.
type Sort struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// Query is a value object describing one evaluation. Filters are
// AND-combined; map keys are column names.
type Query struct {
	Filters  map[string]Filter `json:"filters,omitempty"`
	Sort     *Sort             `json:"sort,omitempty"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// Page is one bounded slice of results plus totals. TotalRows counts the
// post-filter, pre-pagination set.
type Page struct {
	Rows       []table.Row `json:"rows"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalRows  int         `json:"total_rows"`
	TotalPages int         `json:"total_pages"`
	HasNext    bool        `json:"has_next"`
	HasPrev    bool        `json:"has_prev"`
}

// Run evaluates q against the table. The input rows are never modified;
// sorted results are produced on a copied index.
func Run(schema []table.Column, rows []table.Row, q Query) (*Page, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if err := validate(schema, q); err != nil {
		return nil, err
	}

	colIdx := make(map[string]int, len(schema))
	for i, c := range schema {
		colIdx[c.Name] = i
	}

	filtered := rows
	if len(q.Filters) > 0 {
		filtered = make([]table.Row, 0, len(rows))
		for _, r := range rows {
			if matchesAll(schema, colIdx, r, q.Filters) {
				filtered = append(filtered, r)
			}
		}
	}

	if q.Sort != nil {
		filtered = sortRows(filtered, schema[colIdx[q.Sort.Column]], colIdx[q.Sort.Column], q.Sort.Descending)
	}

	return paginate(filtered, q.Page, q.PageSize), nil
}

func validate(schema []table.Column, q Query) error {
	if q.Page < 1 {
		return fmt.Errorf("%w: page %d is below 1", ErrInvalidQuery, q.Page)
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page size %d outside 1..%d", ErrInvalidQuery, q.PageSize, MaxPageSize)
	}

	known := make(map[string]bool, len(schema))
	for _, c := range schema {
		known[c.Name] = true
	}
	for col, f := range q.Filters {
		if !known[col] {
			return fmt.Errorf("%w: filter references unknown column %q", ErrInvalidQuery, col)
		}
		if !f.Op.valid() {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
		}
	}
	if q.Sort != nil && !known[q.Sort.Column] {
		return fmt.Errorf("%w: sort references unknown column %q", ErrInvalidQuery, q.Sort.Column)
	}
	return nil
}

func matchesAll(schema []table.Column, colIdx map[string]int, r table.Row, filters map[string]Filter) bool {
	for col, f := range filters {
		i := colIdx[col]
		v := ""
		if i < len(r) {
			v = r[i]
		}
		if !matches(v, f, schema[i].Type) {
			return false
		}
	}
	return true
}

func matches(v string, f Filter, t table.DataType) bool {
	switch f.Op {
	case "", OpContains:
		if f.CaseSensitive {
			return strings.Contains(v, f.Value)
		}
		return strings.Contains(strings.ToLower(v), strings.ToLower(f.Value))
	case OpEquals:
		if f.CaseSensitive {
			return v == f.Value
		}
		return strings.EqualFold(v, f.Value)
	}

	// Ordering operators: a null never satisfies a comparison.
	if table.IsNull(v) {
		return false
	}
	c, ok := compareTyped(v, f.Value, t, f.CaseSensitive)
	if !ok {
		return false
	}
	switch f.Op {
	case OpGT:
		return c > 0
	case OpLT:
		return c < 0
	case OpGTE:
		return c >= 0
	case OpLTE:
		return c <= 0
	}
	return false
}

// compareTyped orders v against ref. Numeric columns compare numerically,
// date columns by parsed time; anything that fails to parse on either side
// falls back to string comparison.
func compareTyped(v, ref string, t table.DataType, caseSensitive bool) (int, bool) {
	if t.Numeric() {
		fv, okv := infer.ParseFloat(v)
		fr, okr := infer.ParseFloat(ref)
		if okv && okr {
			switch {
			case fv < fr:
				return -1, true
			case fv > fr:
				return 1, true
			}
			return 0, true
		}
	}
	if t == table.Date {
		tv, okv := infer.ParseDate(v)
		tr, okr := infer.ParseDate(ref)
		if okv && okr {
			switch {
			case tv.Before(tr):
				return -1, true
			case tv.After(tr):
				return 1, true
			}
			return 0, true
		}
	}
	if !caseSensitive {
		v, ref = strings.ToLower(v), strings.ToLower(ref)
	}
	return strings.Compare(v, ref), true
}

// sortRows stable-sorts a copy of rows by the designated column. Nulls land
// at the end for both directions.
func sortRows(rows []table.Row, col table.Column, idx int, descending bool) []table.Row {
	out := make([]table.Row, len(rows))
	copy(out, rows)

	value := func(r table.Row) (string, bool) {
		if idx >= len(r) || table.IsNull(r[idx]) {
			return "", false
		}
		return r[idx], true
	}

	sort.SliceStable(out, func(i, j int) bool {
		vi, oki := value(out[i])
		vj, okj := value(out[j])
		if !oki || !okj {
			// Null ordering ignores direction.
			return oki && !okj
		}
		c, _ := compareTyped(vi, vj, col.Type, true)
		if descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

func paginate(rows []table.Row, page, pageSize int) *Page {
	total := len(rows)
	totalPages := (total + pageSize - 1) / pageSize

	p := &Page{
		Rows:       []table.Row{},
		Page:       page,
		PageSize:   pageSize,
		TotalRows:  total,
		TotalPages: totalPages,
		HasPrev:    page > 1 && total > 0,
	}
	// Pages past the end are empty, not an error. Checking against
	// totalPages first also keeps (page-1)*pageSize from overflowing for
	// absurd page numbers.
	if page > totalPages {
		return p
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	p.Rows = rows[start:end]
	p.HasNext = page < totalPages
	return p
}
