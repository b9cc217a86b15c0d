// Command csvquery loads a delimited file, runs one filter/sort/page query
// against it, and prints or exports the result.
//
// Filters are given with -filter, repeatable, one predicate each:
//
//	-filter "active=true"      equals
//	-filter "name~ali"         contains (case-insensitive)
//	-filter "age>=25"          comparison (typed by the inferred column)
//
// Supported operators: ~ = > < >= <=. All filters are AND-combined.
//
// Sorting uses -sort with the column name; prefix with "-" for descending
// (-sort "-age"). Pagination uses -page and -page-size.
//
// With -out the full filtered result set is written to the given path as
// delimited text instead of being rendered.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	ptable "github.com/jedib0t/go-pretty/v6/table"

	"csvlab/internal/config"
	"csvlab/internal/dialect"
	"csvlab/internal/logging"
	"csvlab/internal/query"
	"csvlab/internal/service"
)

// filterList collects repeated -filter flags.
type filterList []string

func (f *filterList) String() string { return strings.Join(*f, ", ") }

func (f *filterList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	var filters filterList
	var (
		flagFile     = flag.String("file", "", "Path of the delimited text file to query")
		flagConfig   = flag.String("config", "", "Path of an optional csvlab config file")
		flagSort     = flag.String("sort", "", "Sort column; prefix with - for descending")
		flagPage     = flag.Int("page", 1, "Page number, 1-indexed")
		flagPageSize = flag.Int("page-size", 0, "Rows per page (0 = configured default)")
		flagOut      = flag.String("out", "", "Write the full filtered result set to this path")
		flagJSON     = flag.Bool("json", false, "Emit the page as JSON instead of a table")
		flagLogLevel = flag.String("log-level", "", "Override the configured log level")
	)
	flag.Var(&filters, "filter", "Column predicate, repeatable (see command doc)")
	flag.Parse()

	if *flagFile == "" {
		flag.Usage()
		log.Fatal("missing required -file")
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	q := query.Query{Page: *flagPage, PageSize: *flagPageSize}
	q.Filters, err = parseFilters(filters)
	if err != nil {
		log.Fatalf("bad filter: %v", err)
	}
	if *flagSort != "" {
		col, desc := strings.TrimPrefix(*flagSort, "-"), strings.HasPrefix(*flagSort, "-")
		q.Sort = &query.Sort{Column: col, Descending: desc}
	}

	svc := service.New(cfg, nil)
	ctx := context.Background()

	sum, err := svc.LoadDataset(ctx, *flagFile, dialect.Override{})
	if err != nil {
		log.Fatalf("load %s: %v", *flagFile, err)
	}
	defer svc.UnloadDataset(sum.Handle)

	if *flagOut != "" {
		n, err := svc.ExportQuery(sum.Handle, q, *flagOut, svc.ExportOptions())
		if err != nil {
			log.Fatalf("export to %s: %v", *flagOut, err)
		}
		fmt.Printf("wrote %d bytes to %s\n", n, *flagOut)
		return
	}

	page, err := svc.QueryDataset(sum.Handle, q)
	if err != nil {
		log.Fatalf("query %s: %v", *flagFile, err)
	}

	if *flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(page); err != nil {
			log.Fatalf("encode json: %v", err)
		}
		return
	}

	headers, err := svc.ListHeaders(sum.Handle)
	if err != nil {
		log.Fatalf("list headers: %v", err)
	}
	renderPage(headers, page)
}

// filterOps maps operator tokens to query operators, longest first so that
// ">=" wins over ">".
var filterOps = []struct {
	token string
	op    query.Op
}{
	{">=", query.OpGTE},
	{"<=", query.OpLTE},
	{">", query.OpGT},
	{"<", query.OpLT},
	{"=", query.OpEquals},
	{"~", query.OpContains},
}

func parseFilters(raw []string) (map[string]query.Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]query.Filter, len(raw))
	for _, r := range raw {
		parsed := false
		for _, cand := range filterOps {
			i := strings.Index(r, cand.token)
			if i <= 0 {
				continue
			}
			col := strings.TrimSpace(r[:i])
			out[col] = query.Filter{Op: cand.op, Value: r[i+len(cand.token):]}
			parsed = true
			break
		}
		if !parsed {
			return nil, fmt.Errorf("cannot parse %q, want column<op>value", r)
		}
	}
	return out, nil
}

func renderPage(headers []string, page *query.Page) {
	t := ptable.NewWriter()
	t.SetOutputMirror(os.Stdout)

	hdr := make(ptable.Row, len(headers))
	for i, h := range headers {
		hdr[i] = h
	}
	t.AppendHeader(hdr)
	for _, r := range page.Rows {
		row := make(ptable.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		t.AppendRow(row)
	}
	t.Render()

	fmt.Printf("page %d/%d, %d rows total\n", page.Page, page.TotalPages, page.TotalRows)
}
