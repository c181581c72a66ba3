package model

import "strings"

// Row is one record read from a tabular source.
// Index is its 0-based position among the data rows of the source and is the
// row's identity for the whole run.
type Row struct {
	Index  int
	Fields map[string]string
}

// Value returns the field value for column, or "" when the column is absent.
func (r Row) Value(column string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[column]
}

// Has reports whether the row carries column at all.
func (r Row) Has(column string) bool {
	_, ok := r.Fields[column]
	return ok
}

// Blank reports whether column is absent or whitespace-only.
func (r Row) Blank(column string) bool {
	return strings.TrimSpace(r.Value(column)) == ""
}
