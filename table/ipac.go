package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// parseIPAC reads an IPAC fixed-width table. Keyword lines start with a
// backslash. Up to four header lines start with '|' and carry, in order,
// column names, datatypes, units and the null token. The '|' positions of
// the first header line delimit the columns of every data line.
func parseIPAC(r io.Reader) (*Table, error) {
	var (
		t       Table
		bounds  []int
		headers [][]string
		nulls   []string
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 4<<20)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		switch {
		case strings.TrimSpace(line) == "":
			continue
		case strings.HasPrefix(line, `\`):
			continue
		case strings.HasPrefix(line, "|") && len(t.Rows) == 0:
			if bounds == nil {
				bounds = pipes(line)
				if len(bounds) < 2 {
					return nil, fmt.Errorf("%w: ipac header has no columns", ErrMalformed)
				}
			}
			headers = append(headers, split(line, bounds))
			continue
		}

		if bounds == nil {
			return nil, fmt.Errorf("%w: ipac data before header", ErrMalformed)
		}

		if t.Columns == nil {
			t.Columns, nulls = ipacColumns(headers)
		}

		row := split(line, bounds)
		for i, v := range row {
			if i < len(nulls) && nulls[i] != "" && v == nulls[i] {
				row[i] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ipac table: %w", err)
	}

	if bounds == nil {
		return nil, fmt.Errorf("%w: ipac table has no header", ErrMalformed)
	}
	if t.Columns == nil {
		t.Columns, _ = ipacColumns(headers)
	}

	return &t, nil
}

func ipacColumns(headers [][]string) ([]Column, []string) {
	cols := make([]Column, len(headers[0]))
	var nulls []string

	for i, name := range headers[0] {
		cols[i].Name = name
		if len(headers) > 1 && i < len(headers[1]) {
			cols[i].Datatype = headers[1][i]
		}
		if len(headers) > 2 && i < len(headers[2]) {
			cols[i].Unit = headers[2][i]
		}
	}
	if len(headers) > 3 {
		nulls = headers[3]
	}

	return cols, nulls
}

// pipes returns the byte offsets of every '|' in line.
func pipes(line string) []int {
	var idx []int
	for i := range len(line) {
		if line[i] == '|' {
			idx = append(idx, i)
		}
	}

	return idx
}

// split cuts line into len(bounds)-1 trimmed cells. The last cell runs to
// the end of the line, as writers sometimes overflow the final column.
func split(line string, bounds []int) []string {
	cells := make([]string, len(bounds)-1)
	for i := range cells {
		start := bounds[i] + 1
		end := bounds[i+1]
		if i == len(cells)-1 {
			end = max(end, len(line))
		}
		if start >= len(line) {
			continue
		}
		end = min(end, len(line))

		cells[i] = strings.TrimSpace(strings.Trim(line[start:end], "|"))
	}

	return cells
}

// parseDelimited reads a CSV or TSV table whose first record holds the
// column names.
func parseDelimited(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = comma == '\t'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty delimited table", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}

	t := Table{Columns: make([]Column, len(header))}
	for i, name := range header {
		t.Columns[i].Name = strings.TrimSpace(name)
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		t.Rows = append(t.Rows, pad(rec, len(t.Columns)))
	}

	return &t, nil
}
