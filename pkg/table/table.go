// Package table defines the shared value types for in-memory tabular data:
// the closed DataType enum, column schema entries, and rows of raw fields.
//
// These types flow between the parser, inferencer, quality analyzer, store,
// query engine, and exporter. They carry no behavior beyond classification
// helpers; all mutation happens in the packages that own the data.
package table

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DataType is the closed set of semantic column types produced by inference.
//
// The zero value is String: the safe default when nothing more specific can
// be proven from a sample.
type DataType int

const (
	String DataType = iota
	Integer
	Float
	Boolean
	Date
)

var dataTypeNames = map[DataType]string{
	String:  "string",
	Integer: "integer",
	Float:   "float",
	Boolean: "boolean",
	Date:    "date",
}

func (t DataType) String() string {
	if s, ok := dataTypeNames[t]; ok {
		return s
	}
	return "string"
}

// Numeric reports whether values of this type sort numerically.
func (t DataType) Numeric() bool {
	return t == Integer || t == Float
}

// Ordered reports whether min/max are meaningful for this type.
func (t DataType) Ordered() bool {
	return t == Integer || t == Float || t == Date
}

// ParseDataType converts a type label back into a DataType.
// Unknown labels map to String rather than failing; the label set is closed
// at the API boundary, so this only matters for hand-edited input.
func ParseDataType(s string) DataType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer":
		return Integer
	case "float":
		return Float
	case "boolean":
		return Boolean
	case "date":
		return Date
	default:
		return String
	}
}

func (t DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *DataType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("data type: %w", err)
	}
	*t = ParseDataType(s)
	return nil
}

// Column is one entry of a dataset schema. Name is unique within a dataset
// and insertion-order significant. The schema is immutable once computed for
// a load; recomputing requires a fresh load.
type Column struct {
	Name     string   `json:"name"`
	Type     DataType `json:"type"`
	Nullable bool     `json:"nullable"`
}

// Row is an ordered sequence of raw field values. Every row in a dataset has
// exactly as many fields as the schema has columns; the parser enforces this
// with its padding policy. An empty (or whitespace-only) field is a null.
type Row []string

// IsNull reports whether a raw field value counts as null.
func IsNull(v string) bool {
	return strings.TrimSpace(v) == ""
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	return append(Row(nil), r...)
}

// ColumnNames extracts the ordered name list from a schema.
func ColumnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
