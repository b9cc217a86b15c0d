// Package infer classifies raw string columns into the closed semantic type
// set {Integer, Float, Boolean, Date, String} from a bounded row sample.
package infer

import (
	"strconv"
	"strings"
	"time"

	"csvlab/pkg/table"
)

// DefaultSampleRows is the default inference sample cap. Classification never
// reads past it; full-column conformance is the quality analyzer's job.
const DefaultSampleRows = 1000

// ParseBool interprets the boolean vocabulary: true/false, yes/no, and 1/0,
// case-insensitive. The second return reports whether s is a boolean token
// at all. Single-letter forms like t or y are not tokens; a column of bare
// letters stays a String.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	default:
		return false, false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
}

// ParseDate tries the supported date layouts in order.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseInt reports whether s is a base-10 64-bit integer.
func ParseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

// ParseFloat reports whether s is a finite decimal number. The accepted
// syntax is narrower than strconv's: no hex floats and no inf/NaN tokens,
// so Float columns always hold comparable decimal values.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '+' || r == '-' || r == '.' || r == 'e' || r == 'E':
		default:
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// Matches reports whether a non-null value conforms to t.
// String matches everything.
func Matches(v string, t table.DataType) bool {
	switch t {
	case table.Integer:
		_, ok := ParseInt(v)
		return ok
	case table.Float:
		_, ok := ParseFloat(v)
		return ok
	case table.Boolean:
		_, ok := ParseBool(v)
		return ok
	case table.Date:
		_, ok := ParseDate(v)
		return ok
	default:
		return true
	}
}

// Column classifies a single column from its sampled values.
//
// Nulls are skipped for type evidence but set Nullable. A column with no
// non-null values in the sample is a nullable String. Candidate types are
// eliminated as values disprove them; the most specific survivor wins, in
// the order Integer, Float, Boolean, Date.
func Column(name string, values []string, sampleRows int) table.Column {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	if len(values) > sampleRows {
		values = values[:sampleRows]
	}

	col := table.Column{Name: name, Type: table.String}

	var seen bool
	allInt := true
	allFloat := true
	allBool := true
	allDate := true

	for _, v := range values {
		if table.IsNull(v) {
			col.Nullable = true
			continue
		}
		seen = true

		if allInt {
			if _, ok := ParseInt(v); !ok {
				allInt = false
			}
		}
		if allFloat {
			if _, ok := ParseFloat(v); !ok {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := ParseBool(v); !ok {
				allBool = false
			}
		}
		if allDate {
			if _, ok := ParseDate(v); !ok {
				allDate = false
			}
		}
	}

	if !seen {
		col.Nullable = true
		return col
	}

	switch {
	case allInt:
		col.Type = table.Integer
	case allFloat:
		col.Type = table.Float
	case allBool:
		col.Type = table.Boolean
	case allDate:
		col.Type = table.Date
	}
	return col
}

// Columns classifies every column of a rectangular table. Rows beyond
// sampleRows contribute nothing, including to Nullable.
func Columns(header []string, rows []table.Row, sampleRows int) []table.Column {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	n := len(rows)
	if n > sampleRows {
		n = sampleRows
	}

	cols := make([]table.Column, len(header))
	for i, name := range header {
		values := make([]string, n)
		for j := 0; j < n; j++ {
			if i < len(rows[j]) {
				values[j] = rows[j][i]
			}
		}
		cols[i] = Column(name, values, sampleRows)
	}
	return cols
}
