package table

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrQueryStatus is returned when a VOTable carries a QUERY_STATUS of
// ERROR instead of data, which is how TAP services report failed queries.
var ErrQueryStatus = errors.New("query status error")

// parseVOTable reads the first TABLE of a VOTable document. Only the
// TABLEDATA serialization is supported.
func parseVOTable(r io.Reader) (*Table, error) {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.CharsetReader = charset.NewReaderLabel

	var (
		t        Table
		row      []string
		inTable  bool
		done     bool
		found    bool
		queryErr string
		errored  bool
	)

	for !done {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: votable: %w", ErrMalformed, err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch strings.ToUpper(el.Name.Local) {
			case "INFO":
				if strings.EqualFold(attr(el, "name"), "QUERY_STATUS") && strings.EqualFold(attr(el, "value"), "ERROR") {
					var info struct {
						Text string `xml:",chardata"`
					}
					if err := d.DecodeElement(&info, &el); err != nil {
						return nil, fmt.Errorf("%w: votable info: %w", ErrMalformed, err)
					}
					errored = true
					queryErr = strings.TrimSpace(info.Text)
				}
			case "TABLE":
				inTable = true
				found = true
			case "FIELD":
				if inTable {
					t.Columns = append(t.Columns, Column{
						Name:     attr(el, "name"),
						Datatype: attr(el, "datatype"),
						Unit:     attr(el, "unit"),
					})
				}
			case "BINARY", "BINARY2", "FITS":
				return nil, fmt.Errorf("%w: votable %s serialization", ErrUnsupportedFormat, el.Name.Local)
			case "TR":
				if inTable {
					row = make([]string, 0, len(t.Columns))
				}
			case "TD":
				if inTable {
					var td struct {
						Text string `xml:",chardata"`
					}
					if err := d.DecodeElement(&td, &el); err != nil {
						return nil, fmt.Errorf("%w: votable cell: %w", ErrMalformed, err)
					}
					row = append(row, strings.TrimSpace(td.Text))
				}
			}
		case xml.EndElement:
			switch strings.ToUpper(el.Name.Local) {
			case "TR":
				if inTable {
					t.Rows = append(t.Rows, pad(row, len(t.Columns)))
					row = nil
				}
			case "TABLE":
				done = true
			}
		}
	}

	if errored {
		return nil, fmt.Errorf("%w: %s", ErrQueryStatus, queryErr)
	}
	if !found {
		return nil, fmt.Errorf("%w: votable has no TABLE element", ErrMalformed)
	}

	return &t, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value
		}
	}

	return ""
}

// pad extends row with empty cells up to n columns.
func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}

	return row
}
