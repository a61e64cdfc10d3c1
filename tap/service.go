package tap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/koatap/client"
	"github.com/adamwoolhether/koatap/client/throttle"
	"github.com/adamwoolhether/koatap/credential"
	"github.com/adamwoolhether/koatap/sink"
	"github.com/adamwoolhether/koatap/table"
	"github.com/adamwoolhether/koatap/uws"
)

const (
	// maxStatusSize caps a status document.
	maxStatusSize = 1 << 20 // 1MB
	// maxEnvelopeSize caps the body inspected for an error envelope, and
	// the body quoted in a ProtocolError.
	maxEnvelopeSize = 4 << 10 // 4KB
)

// Service talks to one TAP endpoint. It holds only long-lived settings,
// so a single Service may run any number of queries concurrently.
type Service struct {
	base         *url.URL
	submit       *client.Client
	fetch        *client.Client
	creds        *credential.Store
	logger       *slog.Logger
	tracer       trace.Tracer
	pollInterval time.Duration
	maxPolls     int
	format       table.Format
	sinkOpts     []sink.Option
}

// Result describes where a query's output ended up.
type Result struct {
	// Path is set when the result was written to a file.
	Path string
	// Table is set when the result was kept in memory.
	Table *table.Table

	JobID     string
	StatusURL string
	ResultURL string
	Phase     uws.Phase
	Bytes     int64
}

// New returns a Service for the TAP endpoint at baseURL, for example
// https://koa.ipac.caltech.edu/TAP.
func New(baseURL string, optFns ...Option) (*Service, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	opts := options{
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer(""),
		userAgent:    "koatap",
		pollInterval: DefaultPollInterval,
		format:       table.DefaultFormat,
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	creds := opts.creds
	if creds == nil {
		creds = credential.Open(opts.cookieFile, opts.logger)
	}

	rt := opts.transport
	if rt == nil {
		rt = http.DefaultTransport
		if opts.httpClient != nil && opts.httpClient.Transport != nil {
			rt = opts.httpClient.Transport
		}
	}
	if opts.rps > 0 {
		logger := opts.logger
		rt, err = throttle.NewRoundTripper(opts.rps, opts.burst, func() *slog.Logger { return logger }, rt)
		if err != nil {
			return nil, fmt.Errorf("configuring rate limit: %w", err)
		}
	}

	common := []client.Option{
		client.WithTransport(rt),
		client.WithLogger(opts.logger),
		client.WithAttacher(creds),
	}
	if opts.httpClient != nil {
		common = append(common, client.WithClient(opts.httpClient))
	}
	if opts.timeout > 0 {
		common = append(common, client.WithTimeout(opts.timeout))
	}
	if opts.userAgent != "" {
		common = append(common, client.WithUserAgent(opts.userAgent))
	}

	submit, err := client.Build(append(slices.Clone(common), client.WithNoFollowRedirects())...)
	if err != nil {
		return nil, fmt.Errorf("building submit client: %w", err)
	}
	fetch, err := client.Build(common...)
	if err != nil {
		return nil, fmt.Errorf("building fetch client: %w", err)
	}

	svc := Service{
		base:         base,
		submit:       submit,
		fetch:        fetch,
		creds:        creds,
		logger:       opts.logger,
		tracer:       opts.tracer,
		pollInterval: opts.pollInterval,
		maxPolls:     opts.maxPolls,
		format:       opts.format,
		sinkOpts:     opts.sinkOpts,
	}

	return &svc, nil
}

// BaseURL returns the endpoint the service was created for.
func (s *Service) BaseURL() string {
	return s.base.String()
}

// Credentials returns the store whose cookies accompany every request.
func (s *Service) Credentials() *credential.Store {
	return s.creds
}

// Resume returns a Job for a status URL obtained earlier, for example from
// a previous run.
func (s *Service) Resume(ctx context.Context, statusURL string) (*uws.Job, error) {
	job, err := uws.NewJob(ctx, statusURL, s, uws.WithLogger(s.logger), uws.WithTracer(s.tracer))
	if err != nil {
		return nil, s.classify(ctx, err)
	}

	return job, nil
}

// FetchStatus retrieves a status document. It implements [uws.Fetcher];
// every failure is reported as ErrTransport.
func (s *Service) FetchStatus(ctx context.Context, statusURL string) ([]byte, error) {
	u, err := url.Parse(statusURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing status url: %w", ErrTransport, err)
	}

	req, err := client.Request(ctx, u, http.MethodGet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var data []byte
	err = s.fetch.Exec(req, http.StatusOK, func(resp *http.Response) error {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusSize))
		if err != nil {
			return fmt.Errorf("reading status document: %w", err)
		}
		data = b
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, err
	}

	return data, nil
}

// deliver hands body to the sink the query asks for and records the
// outcome in res.
func (s *Service) deliver(ctx context.Context, q Query, body io.Reader, size int64, res *Result) error {
	sinkOpts := append([]sink.Option{sink.WithLogger(s.logger)}, s.sinkOpts...)
	cr := &countingReader{r: body}

	if q.OutPath != "" {
		fs, err := sink.NewFileSink(q.OutPath, sinkOpts...)
		if err != nil {
			return fmt.Errorf("creating file sink: %w", err)
		}
		if err := fs.Consume(ctx, cr, size); err != nil {
			return err
		}
		res.Path = fs.Path()
		res.Bytes = cr.n
		return nil
	}

	ms, err := sink.NewMemorySink(q.Format, sinkOpts...)
	if err != nil {
		return fmt.Errorf("creating memory sink: %w", err)
	}
	if err := ms.Consume(ctx, cr, size); err != nil {
		return err
	}
	res.Table = ms.Table()
	res.Bytes = cr.n

	return nil
}

// classify marks err as a cancellation when ctx is done.
func (s *Service) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrCancelled) {
		return fmt.Errorf("%w: %w", cancelled(ctxErr), err)
	}

	return err
}

type envelope struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

// rejection turns a response that carries no usable answer into a
// SubmissionError when it holds an error envelope, or a ProtocolError.
func rejection(resp *http.Response, body io.Reader) error {
	b, err := io.ReadAll(io.LimitReader(body, maxEnvelopeSize))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if msg, ok := envelopeError(b); ok {
		return &SubmissionError{Msg: msg}
	}

	perr := &ProtocolError{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(b),
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %w", ErrAuthFailure, perr)
	}

	return perr
}

func envelopeError(b []byte) (string, bool) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", false
	}
	if !strings.EqualFold(strings.TrimSpace(env.Status), "error") {
		return "", false
	}

	return env.Msg, true
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)

	return n, err
}
