package catalog

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/marcboeker/go-duckdb"
)

// Column is one result column with its DuckDB type name.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Frame is a row-oriented, fully materialized result set.
type Frame struct {
	Columns []Column
	Rows    [][]any
}

// NewFrame builds a frame from column names and rows.
// Column types are left empty and inferred on registration.
func NewFrame(columns []string, rows [][]any) *Frame {
	cols := make([]Column, len(columns))
	for i, name := range columns {
		cols[i] = Column{Name: name}
	}
	return &Frame{Columns: cols, Rows: rows}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// ColumnNames returns the column names in result order.
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// Head returns a frame holding at most n leading rows.
func (f *Frame) Head(n int) *Frame {
	if f == nil || n >= len(f.Rows) {
		return f
	}
	return &Frame{Columns: f.Columns, Rows: f.Rows[:n]}
}

// Records returns the rows as column-name keyed records, the shape used
// for the "results" artifact. An empty frame yields an empty, non-nil slice.
func (f *Frame) Records() []map[string]any {
	if f == nil {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, len(f.Rows))
	for _, row := range f.Rows {
		rec := make(map[string]any, len(f.Columns))
		for i, col := range f.Columns {
			if i < len(row) {
				rec[col.Name] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// Markdown renders the frame as a markdown table for inclusion in prompts.
func (f *Frame) Markdown() string {
	if f == nil || len(f.Columns) == 0 {
		return "(empty result)"
	}

	tw := table.NewWriter()
	header := make(table.Row, len(f.Columns))
	for i, c := range f.Columns {
		header[i] = c.Name
	}
	tw.AppendHeader(header)

	for _, row := range f.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = cell(v)
		}
		tw.AppendRow(r)
	}
	return tw.RenderMarkdown()
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// normalizeValue converts driver-specific scan results into plain Go values
// that encode cleanly to JSON and Starlark.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		if len(val) == 16 {
			if id, err := uuid.FromBytes(val); err == nil {
				return id.String()
			}
		}
		return string(val)
	case duckdb.Decimal:
		return val.Float64()
	case *big.Int:
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	default:
		return val
	}
}

// inferType picks a DuckDB column type for in-memory data from the first non-nil value.
func inferType(f *Frame, col int) string {
	if t := f.Columns[col].Type; t != "" {
		return t
	}
	for _, row := range f.Rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		switch row[col].(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			return "BIGINT"
		case float32, float64:
			return "DOUBLE"
		case bool:
			return "BOOLEAN"
		case time.Time:
			return "TIMESTAMP"
		default:
			return "VARCHAR"
		}
	}
	return "VARCHAR"
}
