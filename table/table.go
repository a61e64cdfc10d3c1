// Package table parses the tabular formats a TAP service returns into a
// simple in-memory representation. Cell values are kept as the strings
// found on the wire; interpreting them against the column datatype is
// left to the caller.
package table

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format is a result encoding the service can be asked for.
type Format string

const (
	FormatVOTable Format = "votable"
	FormatIPAC    Format = "ipac"
	FormatCSV     Format = "csv"
	FormatTSV     Format = "tsv"
)

// DefaultFormat is requested when a query does not name one.
const DefaultFormat = FormatVOTable

var (
	ErrUnsupportedFormat = errors.New("unsupported table format")
	ErrMalformed         = errors.New("malformed table")
)

// ParseFormat maps a user-supplied name onto a Format, case-insensitively.
// An empty name yields DefaultFormat.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return DefaultFormat, nil
	case FormatVOTable, FormatIPAC, FormatCSV, FormatTSV:
		return f, nil
	case "xml", "vot":
		return FormatVOTable, nil
	case "tbl":
		return FormatIPAC, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Ext returns the conventional file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatVOTable:
		return ".xml"
	case FormatIPAC:
		return ".tbl"
	case FormatCSV:
		return ".csv"
	case FormatTSV:
		return ".tsv"
	}

	return ""
}

// Column describes one table column.
type Column struct {
	Name     string
	Datatype string
	Unit     string
}

// Table is a parsed result table.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}

	return names
}

// Index returns the position of the named column, or -1.
// Names compare case-insensitively, as ADQL identifiers do.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}

	return -1
}

// Value returns the cell at row for the named column.
func (t *Table) Value(row int, column string) (string, bool) {
	idx := t.Index(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row]) {
		return "", false
	}

	return t.Rows[row][idx], true
}

// Parse reads a whole table in the given format.
func Parse(f Format, r io.Reader) (*Table, error) {
	switch f {
	case FormatVOTable:
		return parseVOTable(r)
	case FormatIPAC:
		return parseIPAC(r)
	case FormatCSV:
		return parseDelimited(r, ',')
	case FormatTSV:
		return parseDelimited(r, '\t')
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}
