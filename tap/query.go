package tap

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/adamwoolhether/koatap/table"
)

// Query is one request to the service. It is passed by value to every
// call, so a Service carries no per-query state.
type Query struct {
	// ADQL is the query text, sent verbatim.
	ADQL string `json:"query" validate:"required,notblank"`
	// Format is the result encoding. Empty means the service default.
	Format table.Format `json:"format"`
	// MaxRec caps the number of rows. Zero means no cap.
	MaxRec int `json:"maxrec" validate:"gte=0"`
	// OutPath is the file the result is written to. Empty keeps the
	// result in memory as a parsed table.
	OutPath string `json:"outpath"`
}

// normalize validates q and fills in the default format.
func (q Query) normalize(def table.Format) (Query, error) {
	if err := Validate(q); err != nil {
		return Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	return q.output(def)
}

// output resolves only the result format. Fetching a job that already
// ran needs no ADQL.
func (q Query) output(def table.Format) (Query, error) {
	if q.Format == "" {
		q.Format = def
	}
	f, err := table.ParseFormat(string(q.Format))
	if err != nil {
		return Query{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	q.Format = f

	return q, nil
}

// form encodes the request body. The phase field is only sent to the
// async endpoint.
func (q Query) form(async bool) url.Values {
	v := url.Values{
		"request": {"doQuery"},
		"lang":    {"ADQL"},
		"format":  {string(q.Format)},
		"query":   {q.ADQL},
	}
	if async {
		v.Set("phase", "RUN")
	}
	if q.MaxRec > 0 {
		v.Set("maxrec", strconv.Itoa(q.MaxRec))
	}

	return v
}
