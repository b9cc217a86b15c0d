package query

import (
	"errors"
	"reflect"
	"testing"

	"csvlab/pkg/table"
)

func peopleTable() ([]table.Column, []table.Row) {
	schema := []table.Column{
		{Name: "name", Type: table.String},
		{Name: "age", Type: table.Integer, Nullable: true},
		{Name: "active", Type: table.Boolean, Nullable: true},
	}
	rows := []table.Row{
		{"Alice", "30", "true"},
		{"Bob", "", "false"},
		{"Cara", "25", "true"},
		{"Dan", "40", ""},
		{"Eve", "22", "true"},
	}
	return schema, rows
}

func firstColumn(rows []table.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out
}

// TestFilterContains checks the default case-insensitive substring predicate
// and the reference three-match scenario.
func TestFilterContains(t *testing.T) {
	t.Parallel()

	schema, rows := peopleTable()
	page, err := Run(schema, rows, Query{
		Filters: map[string]Filter{"active": {Value: "true"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if page.TotalRows != 3 {
		t.Fatalf("TotalRows = %d, want 3", page.TotalRows)
	}
	want := []string{"Alice", "Cara", "Eve"}
	if got := firstColumn(page.Rows); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}

	// Same filter with a sort applied: membership is unchanged.
	sorted, err := Run(schema, rows, Query{
		Filters: map[string]Filter{"active": {Value: "true"}},
		Sort:    &Sort{Column: "age", Descending: true},
	})
	if err != nil {
		t.Fatalf("Run sorted: %v", err)
	}
	if sorted.TotalRows != 3 {
		t.Fatalf("sorted TotalRows = %d, want 3", sorted.TotalRows)
	}
}

// TestFilterOperators exercises the comparison operator set with typed
// ordering.
func TestFilterOperators(t *testing.T) {
	t.Parallel()

	schema, rows := peopleTable()
	tests := []struct {
		name   string
		filter Filter
		column string
		want   []string
	}{
		{"equals insensitive", Filter{Op: OpEquals, Value: "ALICE"}, "name", []string{"Alice"}},
		{"equals sensitive misses", Filter{Op: OpEquals, Value: "ALICE", CaseSensitive: true}, "name", []string{}},
		{"numeric gt", Filter{Op: OpGT, Value: "25"}, "age", []string{"Alice", "Dan"}},
		{"numeric gte", Filter{Op: OpGTE, Value: "25"}, "age", []string{"Alice", "Cara", "Dan"}},
		{"numeric lt skips nulls", Filter{Op: OpLT, Value: "100"}, "age", []string{"Alice", "Cara", "Dan", "Eve"}},
		{"numeric lte", Filter{Op: OpLTE, Value: "22"}, "age", []string{"Eve"}},
		{"contains substring", Filter{Value: "a"}, "name", []string{"Alice", "Cara", "Dan"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page, err := Run(schema, rows, Query{Filters: map[string]Filter{tt.column: tt.filter}})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			got := firstColumn(page.Rows)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("rows = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFilterAndCombination verifies that multiple filters must all hold.
func TestFilterAndCombination(t *testing.T) {
	t.Parallel()

	schema, rows := peopleTable()
	page, err := Run(schema, rows, Query{
		Filters: map[string]Filter{
			"active": {Op: OpEquals, Value: "true"},
			"age":    {Op: OpGT, Value: "24"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"Alice", "Cara"}
	if got := firstColumn(page.Rows); !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
}

// TestSortTypedAndStable covers numeric ordering, direction, null placement,
// and stability for ties.
func TestSortTypedAndStable(t *testing.T) {
	t.Parallel()

	schema, rows := peopleTable()

	asc, err := Run(schema, rows, Query{Sort: &Sort{Column: "age"}})
	if err != nil {
		t.Fatalf("Run asc: %v", err)
	}
	want := []string{"Eve", "Cara", "Alice", "Dan", "Bob"}
	if got := firstColumn(asc.Rows); !reflect.DeepEqual(got, want) {
		t.Fatalf("asc = %v, want %v", got, want)
	}

	desc, err := Run(schema, rows, Query{Sort: &Sort{Column: "age", Descending: true}})
	if err != nil {
		t.Fatalf("Run desc: %v", err)
	}
	want = []string{"Dan", "Alice", "Cara", "Eve", "Bob"}
	if got := firstColumn(desc.Rows); !reflect.DeepEqual(got, want) {
		t.Fatalf("desc = %v, want %v (nulls must stay last)", got, want)
	}

	// Numeric sort, not lexicographic: 9 < 10 for an Integer column.
	nschema := []table.Column{{Name: "n", Type: table.Integer}}
	nrows := []table.Row{{"10"}, {"9"}, {"100"}}
	np, err := Run(nschema, nrows, Query{Sort: &Sort{Column: "n"}})
	if err != nil {
		t.Fatalf("Run numeric: %v", err)
	}
	if got := firstColumn(np.Rows); !reflect.DeepEqual(got, []string{"9", "10", "100"}) {
		t.Fatalf("numeric sort = %v", got)
	}

	// Stability: equal keys keep original relative order.
	tschema := []table.Column{{Name: "k"}, {Name: "tag"}}
	trows := []table.Row{{"x", "1"}, {"x", "2"}, {"x", "3"}}
	tp, err := Run(tschema, trows, Query{Sort: &Sort{Column: "k"}})
	if err != nil {
		t.Fatalf("Run ties: %v", err)
	}
	var tags []string
	for _, r := range tp.Rows {
		tags = append(tags, r[1])
	}
	if !reflect.DeepEqual(tags, []string{"1", "2", "3"}) {
		t.Fatalf("unstable sort: %v", tags)
	}
}

// TestSortDoesNotMutateInput guards the immutability contract.
func TestSortDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	schema, rows := peopleTable()
	before := firstColumn(rows)
	if _, err := Run(schema, rows, Query{Sort: &Sort{Column: "name", Descending: true}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := firstColumn(rows); !reflect.DeepEqual(got, before) {
		t.Fatalf("input rows reordered: %v", got)
	}
}

// TestPagination covers totals, boundary pages, and navigation flags.
func TestPagination(t *testing.T) {
	t.Parallel()

	schema := []table.Column{{Name: "n", Type: table.Integer}}
	rows := make([]table.Row, 7)
	for i := range rows {
		rows[i] = table.Row{string(rune('a' + i))}
	}

	p1, err := Run(schema, rows, Query{Page: 1, PageSize: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p1.TotalRows != 7 || p1.TotalPages != 3 {
		t.Fatalf("totals = %d/%d, want 7/3", p1.TotalRows, p1.TotalPages)
	}
	if len(p1.Rows) != 3 || p1.HasPrev || !p1.HasNext {
		t.Fatalf("page 1 = %+v", p1)
	}

	p3, err := Run(schema, rows, Query{Page: 3, PageSize: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p3.Rows) != 1 || p3.HasNext || !p3.HasPrev {
		t.Fatalf("page 3 = %+v", p3)
	}

	// Beyond the last page: empty rows, accurate totals, no error.
	p4, err := Run(schema, rows, Query{Page: 4, PageSize: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p4.Rows) != 0 || p4.TotalRows != 7 || p4.TotalPages != 3 {
		t.Fatalf("page beyond end = %+v", p4)
	}
}

// TestPaginationHugePage guards the start-offset arithmetic: a page number
// large enough to overflow (page-1)*pageSize must still resolve to the empty
// beyond-end page, not wrap around to real rows.
func TestPaginationHugePage(t *testing.T) {
	t.Parallel()

	schema, rows := peopleTable()
	huge := []int{1<<60 + 1, 1 << 62, int(^uint(0) >> 1)}
	for _, page := range huge {
		p, err := Run(schema, rows, Query{Page: page, PageSize: MaxPageSize})
		if err != nil {
			t.Fatalf("Run(page=%d): %v", page, err)
		}
		if len(p.Rows) != 0 {
			t.Fatalf("Run(page=%d) returned %d rows, want 0", page, len(p.Rows))
		}
		if p.TotalRows != len(rows) || p.TotalPages != 1 {
			t.Fatalf("Run(page=%d) totals = %d/%d, want %d/1", page, p.TotalRows, p.TotalPages, len(rows))
		}
		if p.HasNext || !p.HasPrev {
			t.Fatalf("Run(page=%d) flags = next %v prev %v", page, p.HasNext, p.HasPrev)
		}
	}
}

// TestInvalidQueries checks every ErrInvalidQuery condition.
func TestInvalidQueries(t *testing.T) {
	t.Parallel()

	schema, rows := peopleTable()
	bad := []Query{
		{Page: -1},
		{Page: 1, PageSize: MaxPageSize + 1},
		{Filters: map[string]Filter{"ghost": {Value: "x"}}},
		{Filters: map[string]Filter{"name": {Op: Op("between"), Value: "x"}}},
		{Sort: &Sort{Column: "ghost"}},
	}
	for i, q := range bad {
		if _, err := Run(schema, rows, q); !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("query %d: err = %v, want ErrInvalidQuery", i, err)
		}
	}
}

// TestIdempotence runs the same query twice and expects identical pages.
func TestIdempotence(t *testing.T) {
	t.Parallel()

	schema, rows := peopleTable()
	q := Query{
		Filters: map[string]Filter{"name": {Value: "a"}},
		Sort:    &Sort{Column: "age", Descending: true},
		Page:    1, PageSize: 2,
	}
	a, err := Run(schema, rows, q)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := Run(schema, rows, q)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("pages differ:\n%+v\n%+v", a, b)
	}
}
