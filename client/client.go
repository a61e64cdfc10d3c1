package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Client wraps the std-lib *http.Client
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs.
type Client struct {
	c      *http.Client
	logger *slog.Logger
}

// Build creates a [Client]. The *http.Client it ends up with is always
// a private copy, so redirect and timeout settings never leak into
// [http.DefaultClient] or a caller-provided client.
func Build(optFns ...Option) (*Client, error) {
	client := &Client{
		c:      &http.Client{},
		logger: slog.Default(),
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.client != nil {
		cpy := *opts.client
		client.c = &cpy
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		client.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if opts.attacher != nil {
		transport = attach{a: opts.attacher, base: transport}
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	client.c.Transport = transport

	return client, nil
}

// Exec runs the request and calls fn on success after validating the
// expected status code. fn owns the body until it returns.
func (c *Client) Exec(req *http.Request, expCode int, fn ResponseFunc) error {
	return c.Handle(req, func(resp *http.Response) error {
		if resp.StatusCode != expCode {
			return unexpectedStatus(resp)
		}

		if err := fn(resp); err != nil {
			return fmt.Errorf("exec fn: %w", err)
		}

		return nil
	})
}

// Handle runs the request and hands every response to fn regardless of
// its status code. It is meant for protocols where a redirect or an error
// envelope is a legitimate answer. The body is drained and closed after
// fn returns.
func (c *Client) Handle(req *http.Request, fn ResponseFunc) error {
	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("%w: exec http do: %w", ErrTransport, err)
	}

	discardBody := true
	defer func() {
		if discardBody {
			if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrBodySize)); err != nil {
				c.logger.Debug("failed to discard unused body", "error", err)
			}
		}
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if err := fn(resp); err != nil {
		discardBody = false
		return err
	}

	return nil
}

// Request instantiates an *http.Request with the provided information.
// It's just a convenience method that wraps the public Request func.
func (c *Client) Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	return Request(ctx, reqURL, method, opts...)
}

// unexpectedStatus builds an UnexpectedStatusError from a response,
// reading at most maxErrBodySize bytes of its body.
func unexpectedStatus(resp *http.Response) error {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
	if err != nil {
		b = []byte("unable to read body")
	}

	sentinel := ErrUnexpectedStatusCode
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		sentinel = fmt.Errorf("%w: %w", ErrAuthFailure, ErrUnexpectedStatusCode)
	}

	return &UnexpectedStatusError{
		StatusCode: resp.StatusCode,
		Body:       string(b),
		Err:        sentinel,
	}
}

// Request instantiates an *http.Request with the provided information.
// A form set via WithForm is sent as `application/x-www-form-urlencoded`;
// bodiless requests carry no Content-Type.
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		err := opt(&settings)
		if err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if settings.form != nil {
		body = strings.NewReader(settings.form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	if settings.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return req, nil
}
