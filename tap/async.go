package tap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/koatap/client"
	"github.com/adamwoolhether/koatap/uws"
)

// SubmitAsync runs q on the async endpoint: it submits the query, waits
// for the job to finish and fetches the result. It blocks until the
// result is stored, the job fails, or ctx is done.
func (s *Service) SubmitAsync(ctx context.Context, q Query) (*Result, error) {
	job, err := s.Submit(ctx, q)
	if err != nil {
		return nil, err
	}

	if _, err := s.Wait(ctx, job); err != nil {
		return nil, err
	}

	return s.Fetch(ctx, job, q)
}

// Submit posts q to the async endpoint and returns the created job after
// its first status refresh. The service must answer with 303 See Other
// pointing at the job; an error envelope yields a SubmissionError and
// anything else a ProtocolError.
func (s *Service) Submit(ctx context.Context, q Query) (*uws.Job, error) {
	q, err := q.normalize(s.format)
	if err != nil {
		return nil, err
	}

	endpoint := s.base.JoinPath("async")
	session := uuid.NewString()
	logger := s.logger.With("session", session)

	ctx, span := s.tracer.Start(ctx, "tap.submit", trace.WithAttributes(
		attribute.String("tap.endpoint", endpoint.String()),
		attribute.String("tap.session", session),
		attribute.String("tap.format", string(q.Format)),
	))
	defer span.End()

	req, err := client.Request(ctx, endpoint, http.MethodPost, client.WithForm(q.form(true)))
	if err != nil {
		return nil, fail(span, fmt.Errorf("building submit request: %w", err))
	}

	logger.Debug("submitting query", "endpoint", endpoint.String(), "format", q.Format, "maxrec", q.MaxRec)

	var statusURL string
	err = s.submit.Handle(req, func(resp *http.Response) error {
		if resp.StatusCode == http.StatusSeeOther {
			if loc := resp.Header.Get("Location"); loc != "" {
				u, err := req.URL.Parse(loc)
				if err != nil {
					return &ProtocolError{StatusCode: resp.StatusCode, Body: "bad Location header: " + loc}
				}
				statusURL = u.String()
				return nil
			}
		}

		return rejection(resp, resp.Body)
	})
	if err != nil {
		return nil, fail(span, s.classify(ctx, err))
	}

	logger.Info("query submitted", "status_url", statusURL)

	job, err := uws.NewJob(ctx, statusURL, s, uws.WithLogger(logger), uws.WithTracer(s.tracer))
	if err != nil {
		return nil, fail(span, s.classify(ctx, fmt.Errorf("first status refresh: %w", err)))
	}
	span.SetAttributes(attribute.String("tap.job_id", job.JobID()))

	return job, nil
}

// Wait polls job until it reaches COMPLETED or ERROR, sleeping the poll
// interval before every refresh. ctx is checked before each sleep and
// each refresh. A job ending in ERROR yields a *JobError carrying the
// server's message.
func (s *Service) Wait(ctx context.Context, job *uws.Job) (*uws.Status, error) {
	ctx, span := s.tracer.Start(ctx, "tap.wait", trace.WithAttributes(
		attribute.String("tap.status_url", job.StatusURL()),
		attribute.String("tap.job_id", job.JobID()),
	))
	defer span.End()

	st := job.Snapshot()
	for polls := 0; !st.Phase.Terminal(); polls++ {
		if s.maxPolls > 0 && polls >= s.maxPolls {
			return nil, fail(span, fmt.Errorf("%w: job %s still %s after %d polls", ErrPollLimit, st.JobID, st.Phase, polls))
		}

		if err := ctx.Err(); err != nil {
			return nil, fail(span, cancelled(err))
		}
		if err := sleep(ctx, s.pollInterval); err != nil {
			return nil, fail(span, cancelled(err))
		}
		if err := ctx.Err(); err != nil {
			return nil, fail(span, cancelled(err))
		}

		next, err := job.Refresh(ctx)
		if err != nil {
			return nil, fail(span, s.classify(ctx, fmt.Errorf("refreshing job %s: %w", st.JobID, err)))
		}
		st = next
	}

	span.SetAttributes(attribute.String("tap.phase", st.Phase.String()))

	if st.Phase == uws.PhaseError {
		s.logger.Warn("job failed", "job_id", st.JobID, "error", st.ErrorSummary)
		return st, fail(span, &JobError{JobID: st.JobID, Msg: st.ErrorSummary})
	}

	s.logger.Info("job completed", "job_id", st.JobID, "result_url", st.ResultURL)

	return st, nil
}

// Fetch downloads the result of a completed job into the sink q selects.
// Only the Format and OutPath of q are used. It never contacts the result
// URL before the job was seen COMPLETED.
func (s *Service) Fetch(ctx context.Context, job *uws.Job, q Query) (*Result, error) {
	q, err := q.output(s.format)
	if err != nil {
		return nil, err
	}

	st := job.Snapshot()
	switch st.Phase {
	case uws.PhaseCompleted:
	case uws.PhaseError:
		return nil, &JobError{JobID: st.JobID, Msg: st.ErrorSummary}
	default:
		return nil, fmt.Errorf("job %s: %w: phase %s", st.JobID, uws.ErrNotTerminal, st.Phase)
	}

	ctx, span := s.tracer.Start(ctx, "tap.fetch", trace.WithAttributes(
		attribute.String("tap.result_url", st.ResultURL),
		attribute.String("tap.job_id", st.JobID),
	))
	defer span.End()

	res := Result{
		JobID:     st.JobID,
		StatusURL: job.StatusURL(),
		ResultURL: st.ResultURL,
		Phase:     st.Phase,
	}

	if err := s.download(ctx, st.ResultURL, q, &res); err != nil {
		return nil, fail(span, s.classify(ctx, err))
	}
	span.SetAttributes(attribute.Int64("tap.bytes", res.Bytes))

	return &res, nil
}

func (s *Service) download(ctx context.Context, resultURL string, q Query, res *Result) error {
	u, err := url.Parse(resultURL)
	if err != nil {
		return fmt.Errorf("parsing result url: %w", err)
	}

	req, err := client.Request(ctx, u, http.MethodGet)
	if err != nil {
		return fmt.Errorf("building result request: %w", err)
	}

	return s.fetch.Handle(req, func(resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			return rejection(resp, resp.Body)
		}

		return s.deliver(ctx, q, resp.Body, resp.ContentLength, res)
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
