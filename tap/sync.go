package tap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/koatap/client"
)

// SubmitSync runs q on the sync endpoint in a single round trip. The
// response body is the result; a JSON body is first checked for an error
// envelope.
func (s *Service) SubmitSync(ctx context.Context, q Query) (*Result, error) {
	q, err := q.normalize(s.format)
	if err != nil {
		return nil, err
	}

	endpoint := s.base.JoinPath("sync")

	ctx, span := s.tracer.Start(ctx, "tap.sync", trace.WithAttributes(
		attribute.String("tap.endpoint", endpoint.String()),
		attribute.String("tap.format", string(q.Format)),
	))
	defer span.End()

	req, err := client.Request(ctx, endpoint, http.MethodPost, client.WithForm(q.form(false)))
	if err != nil {
		return nil, fail(span, fmt.Errorf("building sync request: %w", err))
	}

	s.logger.Debug("running sync query", "endpoint", endpoint.String(), "format", q.Format, "maxrec", q.MaxRec)

	res := Result{ResultURL: endpoint.String()}
	err = s.fetch.Handle(req, func(resp *http.Response) error {
		body := io.Reader(resp.Body)

		if isJSON(resp.Header.Get("Content-Type")) {
			head, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
			if err != nil {
				return fmt.Errorf("%w: reading response: %w", ErrTransport, err)
			}
			if msg, ok := envelopeError(head); ok {
				return &SubmissionError{Msg: msg}
			}
			body = io.MultiReader(bytes.NewReader(head), resp.Body)
		}

		if resp.StatusCode != http.StatusOK {
			return rejection(resp, body)
		}

		return s.deliver(ctx, q, body, resp.ContentLength, &res)
	})
	if err != nil {
		return nil, fail(span, s.classify(ctx, err))
	}
	span.SetAttributes(attribute.Int64("tap.bytes", res.Bytes))

	return &res, nil
}
