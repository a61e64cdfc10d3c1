package uws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Fetcher retrieves the raw status document of a job.
type Fetcher interface {
	FetchStatus(ctx context.Context, statusURL string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, statusURL string) ([]byte, error)

// FetchStatus calls f(ctx, statusURL).
func (f FetcherFunc) FetchStatus(ctx context.Context, statusURL string) ([]byte, error) {
	return f(ctx, statusURL)
}

// Option configures a Job.
type Option func(*options) error

type options struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer records a span around every refresh.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// Job is a handle on one server-side job. The status URL is fixed at
// creation. Everything else is refreshed from the server on demand, and
// refreshes never run concurrently.
type Job struct {
	statusURL string
	base      *url.URL
	fetcher   Fetcher
	logger    *slog.Logger
	tracer    trace.Tracer

	mu        sync.Mutex
	status    *Status
	resultURL string
}

// NewJob creates a Job for statusURL and performs the first refresh, so a
// returned Job always holds a valid snapshot.
func NewJob(ctx context.Context, statusURL string, f Fetcher, opts ...Option) (*Job, error) {
	if f == nil {
		return nil, errors.New("fetcher cannot be nil")
	}

	base, err := url.Parse(statusURL)
	if err != nil {
		return nil, fmt.Errorf("parsing status url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("status url %q is not absolute", statusURL)
	}

	o := options{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	j := Job{
		statusURL: statusURL,
		base:      base,
		fetcher:   f,
		logger:    o.logger.With("status_url", statusURL),
		tracer:    o.tracer,
	}

	if _, err := j.Refresh(ctx); err != nil {
		return nil, err
	}

	return &j, nil
}

// Refresh fetches and parses the status document, replacing the cached
// snapshot. On failure the previous snapshot is kept.
func (j *Job) Refresh(ctx context.Context) (*Status, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx, span := j.tracer.Start(ctx, "uws.refresh", trace.WithAttributes(
		attribute.String("uws.status_url", j.statusURL),
	))
	defer span.End()

	st, err := j.refresh(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("uws.phase", st.Phase.String()))

	return st, nil
}

func (j *Job) refresh(ctx context.Context) (*Status, error) {
	data, err := j.fetcher.FetchStatus(ctx, j.statusURL)
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	st, err := Parse(data, j.logger)
	if err != nil {
		return nil, err
	}

	if prev := j.status; prev != nil && prev.Phase.Terminal() && st.Phase != prev.Phase {
		return nil, malformed("phase changed from terminal %s to %s", prev.Phase, st.Phase)
	}

	if st.Phase == PhaseCompleted {
		href, err := j.base.Parse(st.ResultURL)
		if err != nil {
			return nil, malformed("result reference %q: %v", st.ResultURL, err)
		}

		switch resolved := href.String(); {
		case j.resultURL == "":
			j.resultURL = resolved
		case j.resultURL != resolved:
			j.logger.Warn("ignoring changed result reference", "result_url", j.resultURL, "new", resolved)
		}
		st.ResultURL = j.resultURL
	}

	if j.status == nil || j.status.Phase != st.Phase {
		j.logger.Debug("job phase", "job_id", st.JobID, "phase", st.Phase)
	}
	j.status = st

	return st, nil
}

// StatusURL returns the URL the job was created with.
func (j *Job) StatusURL() string {
	return j.statusURL
}

// Snapshot returns the last successfully parsed status without contacting
// the server.
func (j *Job) Snapshot() *Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.status
}

// JobID returns the identifier the server assigned to the job.
func (j *Job) JobID() string {
	return j.Snapshot().JobID
}

// ProcessID returns the server-side process handling the job, if reported.
func (j *Job) ProcessID() string {
	return j.Snapshot().ProcessID
}

// StartTime returns when the job started executing. It is zero while the
// job is still queued.
func (j *Job) StartTime() time.Time {
	return j.Snapshot().StartTime
}

// Parameters returns the job parameters echoed in the last status document.
func (j *Job) Parameters() []Parameter {
	return j.Snapshot().Parameters
}

// Phase returns the current phase. A cached terminal phase is returned
// as is; otherwise the status document is refreshed first.
func (j *Job) Phase(ctx context.Context) (Phase, error) {
	if st := j.Snapshot(); st.Phase.Terminal() {
		return st.Phase, nil
	}

	st, err := j.Refresh(ctx)
	if err != nil {
		return "", err
	}

	return st.Phase, nil
}

// terminal returns a terminal snapshot, refreshing once if the cached one
// is not terminal yet.
func (j *Job) terminal(ctx context.Context) (*Status, error) {
	st := j.Snapshot()
	if st.Phase.Terminal() {
		return st, nil
	}

	st, err := j.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Phase.Terminal() {
		return nil, &Error{Err: ErrNotTerminal, Detail: fmt.Sprintf("phase %s", st.Phase)}
	}

	return st, nil
}

// ResultURL returns the absolute URL of the job's result.
func (j *Job) ResultURL(ctx context.Context) (string, error) {
	st, err := j.terminal(ctx)
	if err != nil {
		return "", err
	}
	if st.ResultURL == "" {
		return "", missing("result reference", st.Phase)
	}

	return st.ResultURL, nil
}

// ErrorSummary returns the server's error message for a failed job.
func (j *Job) ErrorSummary(ctx context.Context) (string, error) {
	st, err := j.terminal(ctx)
	if err != nil {
		return "", err
	}
	if st.ErrorSummary == "" {
		return "", missing("error summary", st.Phase)
	}

	return st.ErrorSummary, nil
}

// EndTime returns when a finished job stopped executing.
func (j *Job) EndTime(ctx context.Context) (time.Time, error) {
	st, err := j.terminal(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if st.EndTime.IsZero() {
		return time.Time{}, missing("end time", st.Phase)
	}

	return st.EndTime, nil
}

// ExecutionDuration returns the maximum run time the server granted. Zero
// means unlimited.
func (j *Job) ExecutionDuration(ctx context.Context) (time.Duration, error) {
	st, err := j.terminal(ctx)
	if err != nil {
		return 0, err
	}

	return st.ExecutionDuration, nil
}

// Destruction returns when the server will delete a finished job and its
// results.
func (j *Job) Destruction(ctx context.Context) (time.Time, error) {
	st, err := j.terminal(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if st.Destruction.IsZero() {
		return time.Time{}, missing("destruction time", st.Phase)
	}

	return st.Destruction, nil
}

func missing(field string, phase Phase) error {
	return &Error{Err: ErrFieldMissing, Detail: fmt.Sprintf("%s (phase %s)", field, phase)}
}
