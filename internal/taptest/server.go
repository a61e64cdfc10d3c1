// Package taptest provides a scripted TAP service for tests.
package taptest

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// VOTable is the result served unless WithResult replaces it: one row
// with the columns koaid and filehand.
const VOTable = `<?xml version="1.0" encoding="UTF-8"?>
<VOTABLE version="1.4" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">
  <RESOURCE type="results">
    <INFO name="QUERY_STATUS" value="OK"/>
    <TABLE>
      <FIELD name="koaid" datatype="char" arraysize="*"/>
      <FIELD name="filehand" datatype="char" arraysize="*"/>
      <DATA>
        <TABLEDATA>
          <TR><TD>HI.20190101.12345.fits</TD><TD>/koadata/HIRES/20190101/lev0/HI.20190101.12345.fits</TD></TR>
        </TABLEDATA>
      </DATA>
    </TABLE>
  </RESOURCE>
</VOTABLE>
`

// Step is the state one status fetch reports.
type Step struct {
	Phase   string
	Message string
}

// Request records an incoming request.
type Request struct {
	Method  string
	Path    string
	Form    url.Values
	Cookies []*http.Cookie
	Header  http.Header
}

// Option configures a Server.
type Option func(*Server)

// WithJobID fixes the id of the job created by a submission. It defaults
// to a random UUID.
func WithJobID(id string) Option {
	return func(s *Server) {
		s.jobID = id
	}
}

// WithSteps scripts the status documents. Each status fetch consumes one
// step; the last one repeats.
func WithSteps(steps ...Step) Option {
	return func(s *Server) {
		s.steps = steps
	}
}

// WithResult sets the body served for the result and by the sync endpoint.
func WithResult(contentType string, body []byte) Option {
	return func(s *Server) {
		s.contentType = contentType
		s.result = body
	}
}

// WithSubmitError makes the async endpoint answer with an error envelope.
func WithSubmitError(msg string) Option {
	return func(s *Server) {
		s.submitErr = msg
	}
}

// WithSyncError makes the sync endpoint answer with an error envelope.
func WithSyncError(msg string) Option {
	return func(s *Server) {
		s.syncErr = msg
	}
}

// WithSubmitResponse replaces the async endpoint's answer entirely.
func WithSubmitResponse(h http.HandlerFunc) Option {
	return func(s *Server) {
		s.submit = h
	}
}

// Server is a fake TAP service. Submissions answer 303 to
// /status/{id}, status documents follow the scripted steps, and a
// completed job links to /result/{id}.
type Server struct {
	*httptest.Server

	jobID       string
	steps       []Step
	contentType string
	result      []byte
	submitErr   string
	syncErr     string
	submit      http.HandlerFunc

	mu          sync.Mutex
	requests    []Request
	statusCalls int
	resultCalls int
}

// New starts a Server that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := Server{
		jobID:       uuid.NewString(),
		steps:       []Step{{Phase: "EXECUTING"}, {Phase: "COMPLETED"}},
		contentType: "application/x-votable+xml",
		result:      []byte(VOTable),
	}
	for _, opt := range opts {
		opt(&s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /async", s.handleSubmit)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /result/{id}", s.handleResult)
	mux.HandleFunc("POST /sync", s.handleSync)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)

	return &s
}

// JobID returns the id given to submitted jobs.
func (s *Server) JobID() string {
	return s.jobID
}

// StatusPath returns the path submissions redirect to.
func (s *Server) StatusPath() string {
	return "/status/" + s.jobID
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}

// StatusCalls returns the number of status documents served.
func (s *Server) StatusCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statusCalls
}

// ResultCalls returns the number of result downloads served.
func (s *Server) ResultCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resultCalls
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:  r.Method,
			Path:    r.URL.Path,
			Form:    r.PostForm,
			Cookies: r.Cookies(),
			Header:  r.Header.Clone(),
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.submit != nil:
		s.submit(w, r)
	case s.submitErr != "":
		respondJSON(w, http.StatusBadRequest, envelope{Status: "error", Msg: s.submitErr})
	default:
		w.Header().Set("Location", s.StatusPath())
		w.WriteHeader(http.StatusSeeOther)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") != s.jobID {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	step := s.steps[min(s.statusCalls, len(s.steps)-1)]
	s.statusCalls++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(StatusDocument(s.jobID, step))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") != s.jobID {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.resultCalls++
	s.mu.Unlock()

	s.writeResult(w)
}

func (s *Server) handleSync(w http.ResponseWriter, _ *http.Request) {
	if s.syncErr != "" {
		respondJSON(w, http.StatusOK, envelope{Status: "error", Msg: s.syncErr})
		return
	}

	s.writeResult(w)
}

func (s *Server) writeResult(w http.ResponseWriter) {
	w.Header().Set("Content-Type", s.contentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(s.result)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.result)
}

// StatusDocument renders a UWS job document for step. A COMPLETED step
// links to /result/{id}; an ERROR step carries its message.
func StatusDocument(jobID string, step Step) []byte {
	var extra string
	switch strings.ToUpper(step.Phase) {
	case "COMPLETED":
		extra = fmt.Sprintf(`<uws:results><uws:result id="result" xlink:href="/result/%s"/></uws:results>`, jobID)
	case "ERROR":
		var msg bytes.Buffer
		_ = xml.EscapeText(&msg, []byte(step.Message))
		extra = fmt.Sprintf(`<uws:errorSummary type="fatal" hasDetail="false"><uws:message>%s</uws:message></uws:errorSummary>`, msg.String())
	}

	return fmt.Appendf(nil, `<?xml version="1.0" encoding="UTF-8"?>
<uws:job xmlns:uws="http://www.ivoa.net/xml/UWS/v1.0" xmlns:xlink="http://www.w3.org/1999/xlink">
  <uws:jobId>%s</uws:jobId>
  <uws:ownerId xsi:nil="true" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"/>
  <uws:phase>%s</uws:phase>
  <uws:startTime>2024-03-01T10:00:00Z</uws:startTime>
  <uws:executionDuration>3600</uws:executionDuration>
  %s
</uws:job>
`, jobID, step.Phase, extra)
}

type envelope struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(jsonData)
}
