// Package quality profiles loaded tables and scores their fitness.
//
// Everything here is computed once per load from the full row set and stays
// consistent with the stored rows afterwards. Per-column work is bounded:
// exact distinct counting stops at a cardinality cap and hands over to a
// linear-counting estimate, and outlier detection sorts each numeric column
// once.
package quality

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/bits"
	"sort"
	"strings"

	"csvlab/internal/infer"
	"csvlab/pkg/table"
)

const (
	// DefaultDistinctCap is where exact distinct counting gives up and the
	// estimator takes over.
	DefaultDistinctCap = 10000

	// DefaultSampleValues bounds the first-seen sample list per column.
	DefaultSampleValues = 5

	// estimatorBits sizes the linear-counting bitmap (bits, power of two).
	estimatorBits = 1 << 16
)

// Severity tiers an issue by how much it should worry the caller.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Category is the closed set of detectable problem kinds.
type Category string

const (
	IssueMissingValues  Category = "missing_values"
	IssueTypeMismatch   Category = "type_mismatch"
	IssueOutliers       Category = "outliers_present"
	IssueLowCardinality Category = "low_cardinality_identifier"
	IssueDuplicateRows  Category = "duplicate_rows"
	IssueMalformedRows  Category = "malformed_rows"
)

// Issue is one detected problem. Column is empty for dataset-level issues.
type Issue struct {
	Column   string   `json:"column,omitempty"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
	Detail   string   `json:"detail"`
}

// Profile is the derived, read-only description of one column.
type Profile struct {
	Name           string   `json:"name"`
	NullCount      int      `json:"null_count"`
	NullPercentage float64  `json:"null_percentage"`
	UniqueCount    int      `json:"unique_count"`
	UniqueApprox   bool     `json:"unique_approx"`
	SampleValues   []string `json:"sample_values"`

	// Min/Max are set for ordered types only, in raw string form.
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`

	// OutlierCount is the IQR-rule flag count, numeric columns only.
	OutlierCount int `json:"outlier_count"`

	// Consistency is the fraction of non-null values conforming to the
	// column's inferred type, over the full column.
	Consistency float64 `json:"consistency"`
}

// Report is the dataset-level quality verdict.
type Report struct {
	// Score is 0..100, a weighted blend of the three component metrics.
	Score         float64 `json:"score"`
	Completeness  float64 `json:"completeness"`
	Consistency   float64 `json:"consistency"`
	Uniqueness    float64 `json:"uniqueness"`
	DuplicateRows int     `json:"duplicate_rows"`

	Profiles []Profile `json:"profiles"`
	Issues   []Issue   `json:"issues,omitempty"`
}

// Options tunes the analysis. The zero value selects all defaults.
type Options struct {
	DistinctCap  int
	SampleValues int

	// MalformedRows is the parser's leniency intervention count, folded in
	// as a dataset-level issue.
	MalformedRows int
}

// Score weights. Row-level uniqueness carries the least weight: duplicate
// rows are usually a symptom, not the disease.
const (
	weightCompleteness = 0.5
	weightConsistency  = 0.4
	weightUniqueness   = 0.1
)

// Analyze profiles every column and produces the aggregate report.
// Schema and rows must describe the same rectangular table.
func Analyze(schema []table.Column, rows []table.Row, opts Options) *Report {
	if opts.DistinctCap <= 0 {
		opts.DistinctCap = DefaultDistinctCap
	}
	if opts.SampleValues <= 0 {
		opts.SampleValues = DefaultSampleValues
	}

	rep := &Report{Profiles: make([]Profile, len(schema))}
	total := len(rows)

	for i, col := range schema {
		rep.Profiles[i] = profileColumn(col, column(rows, i), opts)
	}

	rep.DuplicateRows = countDuplicateRows(rows)
	rep.Completeness = completeness(rep.Profiles)
	rep.Consistency = consistency(rep.Profiles)
	rep.Uniqueness = rowUniqueness(total, rep.DuplicateRows)
	rep.Score = 100 * (weightCompleteness*rep.Completeness +
		weightConsistency*rep.Consistency +
		weightUniqueness*rep.Uniqueness)

	rep.Issues = collectIssues(schema, rep, total, opts)
	return rep
}

// column extracts one column's raw values; ragged rows read as null.
func column(rows []table.Row, i int) []string {
	out := make([]string, len(rows))
	for j, r := range rows {
		if i < len(r) {
			out[j] = r[i]
		}
	}
	return out
}

func profileColumn(col table.Column, values []string, opts Options) Profile {
	p := Profile{Name: col.Name, Consistency: 1}

	distinct := make(map[string]struct{}, 64)
	est := newEstimator()
	capped := false

	var nonNull, conforming int
	var nums []float64

	for _, v := range values {
		if table.IsNull(v) {
			p.NullCount++
			continue
		}
		nonNull++

		if infer.Matches(v, col.Type) {
			conforming++
		}

		est.add(v)
		if !capped {
			distinct[v] = struct{}{}
			if len(distinct) > opts.DistinctCap {
				// Drop the exact set, the estimator carries on alone.
				distinct = nil
				capped = true
			}
		}

		if len(p.SampleValues) < opts.SampleValues && !seenSample(p.SampleValues, v) {
			p.SampleValues = append(p.SampleValues, v)
		}

		if col.Type.Numeric() {
			if f, ok := infer.ParseFloat(v); ok {
				nums = append(nums, f)
			}
		}
		if col.Type.Ordered() {
			updateMinMax(&p, v, col.Type)
		}
	}

	if n := len(values); n > 0 {
		p.NullPercentage = 100 * float64(p.NullCount) / float64(n)
	}
	if capped {
		p.UniqueCount = est.estimate()
		p.UniqueApprox = true
	} else {
		p.UniqueCount = len(distinct)
	}
	if nonNull > 0 {
		p.Consistency = float64(conforming) / float64(nonNull)
	}
	if col.Type.Numeric() {
		p.OutlierCount = countIQROutliers(nums)
	}
	return p
}

func seenSample(sample []string, v string) bool {
	for _, s := range sample {
		if s == v {
			return true
		}
	}
	return false
}

func updateMinMax(p *Profile, v string, t table.DataType) {
	if p.Min == "" {
		p.Min, p.Max = v, v
		return
	}
	if orderedLess(v, p.Min, t) {
		p.Min = v
	}
	if orderedLess(p.Max, v, t) {
		p.Max = v
	}
}

func orderedLess(a, b string, t table.DataType) bool {
	if t.Numeric() {
		fa, oka := infer.ParseFloat(a)
		fb, okb := infer.ParseFloat(b)
		if oka && okb {
			return fa < fb
		}
		return oka && !okb
	}
	if t == table.Date {
		ta, oka := infer.ParseDate(a)
		tb, okb := infer.ParseDate(b)
		if oka && okb {
			return ta.Before(tb)
		}
		return oka && !okb
	}
	return a < b
}

// countIQROutliers sorts the column's numeric values once and flags values
// outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
func countIQROutliers(nums []float64) int {
	if len(nums) < 4 {
		return 0
	}
	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)

	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	lo := q1 - 1.5*iqr
	hi := q3 + 1.5*iqr

	n := 0
	for _, f := range sorted {
		if f < lo || f > hi {
			n++
		}
	}
	return n
}

// quantile interpolates linearly between the two nearest ranks.
// Input must be sorted and non-empty.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func countDuplicateRows(rows []table.Row) int {
	if len(rows) < 2 {
		return 0
	}
	seen := make(map[string]struct{}, len(rows))
	dups := 0
	for _, r := range rows {
		key := strings.Join(r, "\x1f")
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func completeness(profiles []Profile) float64 {
	if len(profiles) == 0 {
		return 1
	}
	sum := 0.0
	for _, p := range profiles {
		sum += p.NullPercentage / 100
	}
	return 1 - sum/float64(len(profiles))
}

func consistency(profiles []Profile) float64 {
	if len(profiles) == 0 {
		return 1
	}
	sum := 0.0
	for _, p := range profiles {
		sum += p.Consistency
	}
	return sum / float64(len(profiles))
}

func rowUniqueness(total, duplicates int) float64 {
	if total == 0 {
		return 1
	}
	return 1 - float64(duplicates)/float64(total)
}

func collectIssues(schema []table.Column, rep *Report, totalRows int, opts Options) []Issue {
	var issues []Issue

	for i, col := range schema {
		p := rep.Profiles[i]

		if p.NullCount > 0 {
			issues = append(issues, Issue{
				Column:   col.Name,
				Category: IssueMissingValues,
				Severity: tier(p.NullPercentage, 10, 50),
				Count:    p.NullCount,
				Detail:   fmt.Sprintf("%.1f%% of values are null", p.NullPercentage),
			})
		}

		if p.Consistency < 1 {
			mismatch := 100 * (1 - p.Consistency)
			issues = append(issues, Issue{
				Column:   col.Name,
				Category: IssueTypeMismatch,
				Severity: tier(mismatch, 10, 50),
				Detail:   fmt.Sprintf("%.1f%% of values do not parse as %s", mismatch, col.Type),
			})
		}

		if p.OutlierCount > 0 {
			pct := 100 * float64(p.OutlierCount) / float64(totalRows)
			issues = append(issues, Issue{
				Column:   col.Name,
				Category: IssueOutliers,
				Severity: tier(pct, 5, 20),
				Count:    p.OutlierCount,
				Detail:   fmt.Sprintf("%d values outside the 1.5*IQR fences", p.OutlierCount),
			})
		}

		if identifierLike(col.Name) {
			nonNull := totalRows - p.NullCount
			if !p.UniqueApprox && nonNull > 0 && p.UniqueCount < nonNull {
				issues = append(issues, Issue{
					Column:   col.Name,
					Category: IssueLowCardinality,
					Severity: SeverityMedium,
					Count:    nonNull - p.UniqueCount,
					Detail:   fmt.Sprintf("identifier-like column has %d duplicate values", nonNull-p.UniqueCount),
				})
			}
		}
	}

	if rep.DuplicateRows > 0 {
		pct := 100 * float64(rep.DuplicateRows) / float64(totalRows)
		issues = append(issues, Issue{
			Category: IssueDuplicateRows,
			Severity: tier(pct, 5, 25),
			Count:    rep.DuplicateRows,
			Detail:   fmt.Sprintf("%d exact duplicate rows", rep.DuplicateRows),
		})
	}

	if opts.MalformedRows > 0 {
		issues = append(issues, Issue{
			Category: IssueMalformedRows,
			Severity: SeverityMedium,
			Count:    opts.MalformedRows,
			Detail:   fmt.Sprintf("%d rows needed padding, merging, or were skipped at parse time", opts.MalformedRows),
		})
	}

	return issues
}

// tier maps a percentage onto the three severities with the given
// medium/high thresholds.
func tier(pct, medium, high float64) Severity {
	switch {
	case pct >= high:
		return SeverityHigh
	case pct >= medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func identifierLike(name string) bool {
	n := strings.ToLower(name)
	return n == "id" || n == "uuid" || n == "key" ||
		strings.HasSuffix(n, "_id") || strings.HasSuffix(n, "_key")
}

// estimator is a linear-counting distinct estimator: a fixed bitmap over a
// 64-bit hash. Error stays low while the load factor is moderate, which the
// cap handoff guarantees for realistic columns.
type estimator struct {
	bitmap []uint64
}

func newEstimator() *estimator {
	return &estimator{bitmap: make([]uint64, estimatorBits/64)}
}

func (e *estimator) add(v string) {
	h := fnv.New64a()
	h.Write([]byte(v))
	bit := h.Sum64() % estimatorBits
	e.bitmap[bit/64] |= 1 << (bit % 64)
}

// estimate returns -m * ln(z/m), where z is the count of unset bits.
func (e *estimator) estimate() int {
	set := 0
	for _, w := range e.bitmap {
		set += bits.OnesCount64(w)
	}
	zero := estimatorBits - set
	if zero == 0 {
		return estimatorBits
	}
	m := float64(estimatorBits)
	return int(math.Round(m * math.Log(m/float64(zero))))
}
