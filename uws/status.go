package uws

import (
	"bytes"
	"encoding/xml"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Parameter is one job parameter echoed back by the server.
type Parameter struct {
	ID    string
	Value string
}

// Result is one entry of the job's results block.
type Result struct {
	ID   string
	Href string
}

// Status is an immutable snapshot of one status document.
type Status struct {
	JobID     string
	RunID     string
	OwnerID   string
	ProcessID string
	Phase     Phase
	Quote     string

	StartTime         time.Time
	EndTime           time.Time
	ExecutionDuration time.Duration
	Destruction       time.Time

	Parameters    []Parameter
	RawParameters string
	Results       []Result

	// ResultURL is set only when Phase is COMPLETED.
	ResultURL string
	// ErrorSummary is set only when Phase is ERROR.
	ErrorSummary string

	Raw []byte
}

type xmlJob struct {
	XMLName           xml.Name         `xml:"job"`
	JobID             string           `xml:"jobId"`
	RunID             string           `xml:"runId"`
	OwnerID           string           `xml:"ownerId"`
	ProcessID         string           `xml:"processId"`
	Phase             string           `xml:"phase"`
	Quote             string           `xml:"quote"`
	StartTime         string           `xml:"startTime"`
	EndTime           string           `xml:"endTime"`
	ExecutionDuration string           `xml:"executionDuration"`
	Destruction       string           `xml:"destruction"`
	Parameters        *xmlParameters   `xml:"parameters"`
	Results           []xmlResult      `xml:"results>result"`
	ErrorSummary      *xmlErrorSummary `xml:"errorSummary"`
}

type xmlParameters struct {
	Inner  string         `xml:",innerxml"`
	Params []xmlParameter `xml:"parameter"`
}

type xmlParameter struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type xmlResult struct {
	ID    string     `xml:"id,attr"`
	Attrs []xml.Attr `xml:",any,attr"`
}

type xmlErrorSummary struct {
	Type    string `xml:"type,attr"`
	Message string `xml:"message"`
}

// href returns the result's link, whatever prefix the document bound the
// XLink namespace to.
func (r xmlResult) href() string {
	for _, a := range r.Attrs {
		if a.Name.Local == "href" {
			return strings.TrimSpace(a.Value)
		}
	}

	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
}

// Parse decodes a UWS job document. Optional fields that fail to parse
// are left empty and logged. A missing phase, or a phase whose required
// field is absent, yields ErrMalformedStatus.
func Parse(data []byte, logger *slog.Logger) (*Status, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel

	var doc xmlJob
	if err := d.Decode(&doc); err != nil {
		return nil, malformed("decoding xml: %v", err)
	}

	phase := ParsePhase(doc.Phase)
	if phase == "" {
		return nil, malformed("phase is missing")
	}

	st := Status{
		JobID:     strings.TrimSpace(doc.JobID),
		RunID:     strings.TrimSpace(doc.RunID),
		OwnerID:   strings.TrimSpace(doc.OwnerID),
		ProcessID: strings.TrimSpace(doc.ProcessID),
		Phase:     phase,
		Quote:     strings.TrimSpace(doc.Quote),
		Raw:       data,
	}

	st.StartTime = parseTime(logger, "startTime", doc.StartTime)
	st.EndTime = parseTime(logger, "endTime", doc.EndTime)
	st.Destruction = parseTime(logger, "destruction", doc.Destruction)

	if v := strings.TrimSpace(doc.ExecutionDuration); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logger.Debug("ignoring unparsable status field", "field", "executionDuration", "value", v, "error", err)
		} else {
			st.ExecutionDuration = time.Duration(secs) * time.Second
		}
	}

	if doc.Parameters != nil {
		st.RawParameters = strings.TrimSpace(doc.Parameters.Inner)
		for _, p := range doc.Parameters.Params {
			st.Parameters = append(st.Parameters, Parameter{ID: p.ID, Value: strings.TrimSpace(p.Value)})
		}
	}

	for _, r := range doc.Results {
		st.Results = append(st.Results, Result{ID: r.ID, Href: r.href()})
	}

	switch phase {
	case PhaseCompleted:
		for _, r := range st.Results {
			if r.Href != "" {
				st.ResultURL = r.Href
				break
			}
		}
		if st.ResultURL == "" {
			return nil, malformed("phase %s without a result reference", phase)
		}
	case PhaseError:
		if doc.ErrorSummary != nil {
			st.ErrorSummary = strings.TrimSpace(doc.ErrorSummary.Message)
		}
		if st.ErrorSummary == "" {
			return nil, malformed("phase %s without an error message", phase)
		}
	}

	return &st, nil
}

func parseTime(logger *slog.Logger, field, v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}

	logger.Debug("ignoring unparsable status field", "field", field, "value", v)

	return time.Time{}
}
