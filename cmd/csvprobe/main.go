// Command csvprobe inspects a delimited text file without loading it into a
// dataset: it reports the detected dialect, the inferred column schema with
// per-column profiles, and the quality assessment.
//
// Output modes
//
//   - Default mode: human-readable tables on stdout.
//   - -json: a single JSON document with the same content, for scripting.
//   - -validate: structural probe only (dialect, column count, estimated
//     rows) from the sampled prefix, skipping the full read.
//
// # Dialect overrides
//
// Detection can be pinned per property: -delimiter, -encoding, and -header
// bypass the corresponding heuristic while the others still run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	ptable "github.com/jedib0t/go-pretty/v6/table"

	"csvlab/internal/config"
	"csvlab/internal/dialect"
	"csvlab/internal/logging"
	"csvlab/internal/quality"
	"csvlab/internal/service"
	"csvlab/pkg/table"
)

func main() {
	var (
		flagFile      = flag.String("file", "", "Path of the delimited text file to inspect")
		flagConfig    = flag.String("config", "", "Path of an optional csvlab config file")
		flagDelimiter = flag.String("delimiter", "", "Pin the delimiter instead of detecting it (one character)")
		flagEncoding  = flag.String("encoding", "", "Pin the encoding: utf-8, utf-16le, utf-16be, windows-1252")
		flagHeader    = flag.String("header", "auto", "Header presence: auto, yes, no")
		flagJSON      = flag.Bool("json", false, "Emit one JSON document instead of tables")
		flagValidate  = flag.Bool("validate", false, "Structural probe only, skip the full read")
		flagLogLevel  = flag.String("log-level", "", "Override the configured log level")
	)
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

	ov, err := parseOverride(*flagDelimiter, *flagEncoding, *flagHeader)
	if err != nil {
		log.Fatalf("bad override: %v", err)
	}

	svc := service.New(cfg, nil)
	ctx := context.Background()

	if *flagValidate {
		v, err := svc.ValidateFile(ctx, *flagFile, ov)
		if err != nil {
			log.Fatalf("validate %s: %v", *flagFile, err)
		}
		if *flagJSON {
			printJSON(v)
			return
		}
		printValidation(v)
		return
	}

	d, err := svc.DetectDialect(*flagFile, ov)
	if err != nil {
		log.Fatalf("detect dialect of %s: %v", *flagFile, err)
	}
	schema, profiles, err := svc.AnalyzeColumns(ctx, *flagFile, ov)
	if err != nil {
		log.Fatalf("analyze %s: %v", *flagFile, err)
	}
	rep, err := svc.AssessQuality(ctx, *flagFile, ov)
	if err != nil {
		log.Fatalf("assess %s: %v", *flagFile, err)
	}

	if *flagJSON {
		printJSON(map[string]any{
			"dialect": d,
			"schema":  schema,
			"quality": rep,
		})
		return
	}

	printDialect(d)
	printSchema(schema, profiles)
	printQuality(rep)
}

func parseOverride(delim, enc, header string) (dialect.Override, error) {
	var ov dialect.Override
	if delim != "" {
		r := []rune(delim)
		if len(r) != 1 {
			return ov, fmt.Errorf("delimiter %q is not a single character", delim)
		}
		ov.Delimiter = r[0]
	}
	switch enc {
	case "":
	case string(dialect.EncodingUTF8), string(dialect.EncodingUTF16LE),
		string(dialect.EncodingUTF16BE), string(dialect.EncodingWindows1252):
		ov.Encoding = dialect.Encoding(enc)
	default:
		return ov, fmt.Errorf("unknown encoding %q", enc)
	}
	switch header {
	case "auto":
	case "yes":
		v := true
		ov.HasHeader = &v
	case "no":
		v := false
		ov.HasHeader = &v
	default:
		return ov, fmt.Errorf("header must be auto, yes, or no, got %q", header)
	}
	return ov, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode json: %v", err)
	}
}

func printDialect(d dialect.Dialect) {
	fmt.Printf("dialect: delimiter=%q encoding=%s header=%v confidence=%.2f\n\n",
		d.Delimiter, d.Encoding, d.HasHeader, d.Confidence)
}

func printValidation(v *service.Validation) {
	fmt.Printf("file: %s (%d bytes)\n", v.Path, v.SizeBytes)
	printDialect(v.Dialect)
	fmt.Printf("columns: %d\nestimated rows: %d\n", v.Columns, v.EstimatedRows)
}

func printSchema(schema []table.Column, profiles []quality.Profile) {
	t := ptable.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(ptable.Row{"Column", "Type", "Nullable", "Null %", "Unique", "Min", "Max", "Samples"})
	for i, c := range schema {
		p := profiles[i]
		unique := fmt.Sprintf("%d", p.UniqueCount)
		if p.UniqueApprox {
			unique = "~" + unique
		}
		t.AppendRow(ptable.Row{
			c.Name, c.Type.String(), c.Nullable,
			fmt.Sprintf("%.1f", p.NullPercentage),
			unique, p.Min, p.Max,
			fmt.Sprintf("%v", p.SampleValues),
		})
	}
	t.Render()
	fmt.Println()
}

func printQuality(rep *quality.Report) {
	fmt.Printf("quality score: %.1f (completeness %.2f, consistency %.2f, uniqueness %.2f)\n",
		rep.Score, rep.Completeness, rep.Consistency, rep.Uniqueness)
	if len(rep.Issues) == 0 {
		fmt.Println("no issues detected")
		return
	}
	t := ptable.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(ptable.Row{"Severity", "Category", "Column", "Count", "Detail"})
	for _, is := range rep.Issues {
		t.AppendRow(ptable.Row{is.Severity, is.Category, is.Column, is.Count, is.Detail})
	}
	t.Render()
}
