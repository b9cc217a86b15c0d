// Package service wires the leaf components into the operation surface the
// command layer consumes: dialect detection, parsing, analysis, quality
// assessment, the dataset registry, querying, and export.
//
// The service itself owns no rows; all loaded data lives in the store. Every
// method is safe for concurrent use.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"csvlab/internal/config"
	"csvlab/internal/dialect"
	"csvlab/internal/export"
	"csvlab/internal/infer"
	"csvlab/internal/logging"
	csvparse "csvlab/internal/parser/csv"
	"csvlab/internal/quality"
	"csvlab/internal/query"
	"csvlab/internal/store"
	"csvlab/pkg/table"
)

// Service is the operation surface over one dataset store.
type Service struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.Store
}

// New builds a Service. A nil logger is replaced with a silent one.
func New(cfg *config.Config, log *slog.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{cfg: cfg, log: log, store: store.New()}
}

// DetectDialect sniffs delimiter, encoding, and header presence from the
// file's leading bytes.
func (s *Service) DetectDialect(path string, ov dialect.Override) (dialect.Dialect, error) {
	sample, err := readSample(path, s.cfg.SampleBytes)
	if err != nil {
		return dialect.Dialect{}, err
	}
	d := dialect.Detect(sample, ov)
	s.log.Debug("dialect detected", "path", path,
		"delimiter", string(d.Delimiter), "encoding", d.Encoding,
		"has_header", d.HasHeader, "confidence", d.Confidence)
	return d, nil
}

// ParseFile detects the dialect (honoring overrides) and parses the whole
// file into memory.
func (s *Service) ParseFile(ctx context.Context, path string, ov dialect.Override) (*csvparse.Result, dialect.Dialect, error) {
	d, err := s.DetectDialect(path, ov)
	if err != nil {
		return nil, dialect.Dialect{}, err
	}
	res, err := csvparse.ParseFile(ctx, path, csvparse.Options{
		Dialect:   d,
		TrimSpace: s.cfg.TrimSpace,
	})
	if err != nil {
		return nil, d, err
	}
	s.log.Info("file parsed", "path", path,
		"rows", res.TotalRows, "columns", len(res.Header), "issues", len(res.Issues))
	return res, d, nil
}

// AnalyzeColumns infers the schema and profiles every column.
func (s *Service) AnalyzeColumns(ctx context.Context, path string, ov dialect.Override) ([]table.Column, []quality.Profile, error) {
	res, _, err := s.ParseFile(ctx, path, ov)
	if err != nil {
		return nil, nil, err
	}
	schema := infer.Columns(res.Header, res.Rows, s.cfg.InferRows)
	rep := quality.Analyze(schema, res.Rows, s.qualityOptions(res))
	return schema, rep.Profiles, nil
}

// AssessQuality produces the full quality report for a file.
func (s *Service) AssessQuality(ctx context.Context, path string, ov dialect.Override) (*quality.Report, error) {
	res, _, err := s.ParseFile(ctx, path, ov)
	if err != nil {
		return nil, err
	}
	schema := infer.Columns(res.Header, res.Rows, s.cfg.InferRows)
	rep := quality.Analyze(schema, res.Rows, s.qualityOptions(res))
	s.log.Info("quality assessed", "path", path,
		"score", rep.Score, "issues", len(rep.Issues))
	return rep, nil
}

// Validation is the cheap structural check result: enough to decide whether
// a full load is worthwhile, without reading the whole file.
type Validation struct {
	Path          string          `json:"path"`
	SizeBytes     int64           `json:"size_bytes"`
	Dialect       dialect.Dialect `json:"dialect"`
	Columns       int             `json:"columns"`
	EstimatedRows int             `json:"estimated_rows"`
}

// ValidateFile parses only the sampled prefix and extrapolates the row count
// from the file size.
func (s *Service) ValidateFile(ctx context.Context, path string, ov dialect.Override) (*Validation, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("service: stat %s: %w", path, err)
	}
	sample, err := readSample(path, s.cfg.SampleBytes)
	if err != nil {
		return nil, err
	}
	d := dialect.Detect(sample, ov)

	// The sample is cut at a byte boundary, not a rune boundary; drop a
	// truncated trailing rune so the cut point is not reported as an
	// encoding problem.
	sample = dialect.TrimPartialRune(sample)
	res, err := csvparse.ParseBytes(ctx, sample, csvparse.Options{
		Dialect:   d,
		TrimSpace: s.cfg.TrimSpace,
	})
	if err != nil {
		return nil, err
	}

	v := &Validation{
		Path:      path,
		SizeBytes: info.Size(),
		Dialect:   d,
		Columns:   len(res.Header),
	}
	v.EstimatedRows = estimateRows(res.TotalRows, len(sample), info.Size(), d.HasHeader)
	return v, nil
}

// LoadDataset runs the full pipeline: detect, parse, infer, assess, register.
// The returned summary carries the fresh handle.
func (s *Service) LoadDataset(ctx context.Context, path string, ov dialect.Override) (store.Summary, error) {
	start := time.Now()
	info, err := os.Stat(path)
	if err != nil {
		return store.Summary{}, fmt.Errorf("service: stat %s: %w", path, err)
	}

	res, d, err := s.ParseFile(ctx, path, ov)
	if err != nil {
		return store.Summary{}, err
	}
	schema := infer.Columns(res.Header, res.Rows, s.cfg.InferRows)
	rep := quality.Analyze(schema, res.Rows, s.qualityOptions(res))

	ds := &store.Dataset{
		Schema: schema,
		Rows:   res.Rows,
		Report: rep,
		Summary: store.Summary{
			Path:      path,
			SizeBytes: info.Size(),
			Dialect:   d,
			LoadedAt:  time.Now().UTC(),
			Score:     rep.Score,
		},
	}
	h := s.store.Register(ds)

	s.log.Info("dataset loaded", "path", path, "handle", string(h),
		"rows", len(res.Rows), "columns", len(schema),
		"score", rep.Score, "elapsed", time.Since(start))
	return ds.Summary, nil
}

// UnloadDataset removes a dataset; subsequent calls against the handle fail
// with store.ErrNotFound.
func (s *Service) UnloadDataset(h store.Handle) error {
	if err := s.store.Unload(h); err != nil {
		return err
	}
	s.log.Info("dataset unloaded", "handle", string(h))
	return nil
}

// QueryDataset evaluates a query against a loaded dataset.
func (s *Service) QueryDataset(h store.Handle, q query.Query) (*query.Page, error) {
	ds, err := s.store.Get(h)
	if err != nil {
		return nil, err
	}
	if q.PageSize == 0 {
		q.PageSize = s.cfg.DefaultPageSize
	}
	return query.Run(ds.Schema, ds.Rows, q)
}

// ListHeaders returns the dataset's ordered column names.
func (s *Service) ListHeaders(h store.Handle) ([]string, error) {
	schema, err := s.store.Schema(h)
	if err != nil {
		return nil, err
	}
	return table.ColumnNames(schema), nil
}

// ListDatasets returns summaries of everything currently loaded.
func (s *Service) ListDatasets() []store.Summary {
	return s.store.List()
}

// GetDataset resolves a handle for callers that render schema or report
// details.
func (s *Service) GetDataset(h store.Handle) (*store.Dataset, error) {
	return s.store.Get(h)
}

// ExportRows writes an arbitrary row set to the destination path.
func (s *Service) ExportRows(dest string, header []string, rows []table.Row, opts export.Options) (int, error) {
	n, err := export.WriteFile(dest, header, rows, opts)
	if err != nil {
		return n, err
	}
	s.log.Info("rows exported", "dest", dest, "rows", len(rows), "bytes", n)
	return n, nil
}

// ExportQuery writes the full filtered, sorted result set of a query,
// walking pages so no single page exceeds the engine's bound.
func (s *Service) ExportQuery(h store.Handle, q query.Query, dest string, opts export.Options) (int, error) {
	ds, err := s.store.Get(h)
	if err != nil {
		return 0, err
	}

	q.PageSize = query.MaxPageSize
	q.Page = 1
	var rows []table.Row
	for {
		page, err := query.Run(ds.Schema, ds.Rows, q)
		if err != nil {
			return 0, err
		}
		rows = append(rows, page.Rows...)
		if !page.HasNext {
			break
		}
		q.Page++
	}
	return s.ExportRows(dest, table.ColumnNames(ds.Schema), rows, opts)
}

func (s *Service) qualityOptions(res *csvparse.Result) quality.Options {
	return quality.Options{
		DistinctCap:   s.cfg.DistinctCap,
		SampleValues:  s.cfg.SampleValues,
		MalformedRows: len(res.Issues),
	}
}

// ExportOptions translates the configured export defaults.
func (s *Service) ExportOptions() export.Options {
	delim := ','
	if s.cfg.Export.Delimiter != "" {
		delim = []rune(s.cfg.Export.Delimiter)[0]
	}
	return export.Options{
		Delimiter:      delim,
		IncludeHeaders: s.cfg.Export.IncludeHeaders,
		Quote:          export.QuoteMode(s.cfg.Export.Quote),
		Encoding:       dialect.Encoding(s.cfg.Export.Encoding),
	}
}

func readSample(path string, n int) ([]byte, error) {
	if n <= 0 {
		n = dialect.DefaultSampleBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("service: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("service: read %s: %w", path, err)
	}
	return buf[:read], nil
}

// estimateRows extrapolates the total data row count from the sampled
// prefix. An exact count for files smaller than the sample, a size-scaled
// estimate otherwise.
func estimateRows(sampledRows, sampleLen int, fileSize int64, hasHeader bool) int {
	if int64(sampleLen) >= fileSize {
		return sampledRows
	}
	if sampledRows == 0 || sampleLen == 0 {
		return 0
	}
	perRow := float64(sampleLen) / float64(sampledRows)
	est := int(float64(fileSize) / perRow)
	if hasHeader && est > 0 {
		est--
	}
	return est
}
