package client

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	noFollowRedirects bool
	logger            *slog.Logger
	attacher          Attacher
}

// Attacher decorates outgoing requests with session state, e.g. cookies
// loaded from a credential file.
type Attacher interface {
	Attach(r *http.Request)
}

// WithClient replaces the default [http.Client] used by the [Client].
// The given client is copied, never mutated.
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the overall request timeout on the underlying [http.Client].
// Result streams can be large, zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithNoFollowRedirects prevents the [Client] from following HTTP redirects,
// handing 3xx responses back to the caller.
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithAttacher runs a.Attach on every outgoing request.
func WithAttacher(a Attacher) Option {
	return func(c *options) error {
		if a == nil {
			return errors.New("attacher must not be nil")
		}
		c.attacher = a
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}

// attach is an http.RoundTripper applying an Attacher to a clone of each request.
type attach struct {
	a    Attacher
	base http.RoundTripper
}

func (at attach) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	at.a.Attach(cpy)
	return at.base.RoundTrip(cpy)
}

// RequestOption is a functional option for [Request].
type RequestOption func(options *requestOpts) error

type requestOpts struct {
	form url.Values
}

// WithForm sets a form-encoded request body. Content-Type defaults to
// application/x-www-form-urlencoded.
func WithForm(values url.Values) RequestOption {
	return func(opts *requestOpts) error {
		if values == nil {
			return errors.New("form values must not be nil")
		}

		opts.form = values

		return nil
	}
}
