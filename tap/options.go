package tap

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/koatap/credential"
	"github.com/adamwoolhether/koatap/sink"
	"github.com/adamwoolhether/koatap/table"
)

// DefaultPollInterval is the pause between two status refreshes.
const DefaultPollInterval = 2 * time.Second

// Option configures a Service.
type Option func(*options) error

type options struct {
	logger       *slog.Logger
	tracer       trace.Tracer
	creds        *credential.Store
	cookieFile   string
	httpClient   *http.Client
	transport    http.RoundTripper
	timeout      time.Duration
	userAgent    string
	rps          int
	burst        int
	pollInterval time.Duration
	maxPolls     int
	format       table.Format
	sinkOpts     []sink.Option
}

// WithLogger sets the logger for the service and everything it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		opts.logger = logger
		return nil
	}
}

// WithTracer records spans for submission, polling and result transfer.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) error {
		if tracer == nil {
			return errors.New("tracer cannot be nil")
		}
		opts.tracer = tracer
		return nil
	}
}

// WithCredentials attaches the cookies of store to every request.
func WithCredentials(store *credential.Store) Option {
	return func(opts *options) error {
		if store == nil {
			return errors.New("credential store cannot be nil")
		}
		opts.creds = store
		return nil
	}
}

// WithCookieFile loads credentials from a Netscape cookie file. A missing
// or unreadable file is logged and the service runs anonymously.
func WithCookieFile(path string) Option {
	return func(opts *options) error {
		opts.cookieFile = path
		return nil
	}
}

// WithHTTPClient uses a copy of hc as the base client.
func WithHTTPClient(hc *http.Client) Option {
	return func(opts *options) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		opts.httpClient = hc
		return nil
	}
}

// WithTransport sets the base round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(opts *options) error {
		if rt == nil {
			return errors.New("transport cannot be nil")
		}
		opts.transport = rt
		return nil
	}
}

// WithTimeout bounds every single HTTP exchange, including reading the
// result body. It does not bound the whole query.
func WithTimeout(d time.Duration) Option {
	return func(opts *options) error {
		if d <= 0 {
			return errors.New("timeout must be greater than zero")
		}
		opts.timeout = d
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(opts *options) error {
		opts.userAgent = ua
		return nil
	}
}

// WithRateLimit caps the request rate shared by submissions, status
// refreshes and result transfers.
func WithRateLimit(rps, burst int) Option {
	return func(opts *options) error {
		if rps <= 0 || burst <= 0 {
			return errors.New("rps and burst must be greater than zero")
		}
		opts.rps = rps
		opts.burst = burst
		return nil
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(opts *options) error {
		if d <= 0 {
			return errors.New("poll interval must be greater than zero")
		}
		opts.pollInterval = d
		return nil
	}
}

// WithMaxPolls stops waiting with ErrPollLimit after n refreshes.
// Zero, the default, waits until the job ends or the context is done.
func WithMaxPolls(n int) Option {
	return func(opts *options) error {
		if n < 0 {
			return errors.New("max polls cannot be negative")
		}
		opts.maxPolls = n
		return nil
	}
}

// WithFormat sets the format used by queries that do not name one.
func WithFormat(f table.Format) Option {
	return func(opts *options) error {
		parsed, err := table.ParseFormat(string(f))
		if err != nil {
			return err
		}
		opts.format = parsed
		return nil
	}
}

// WithSinkOptions are passed to the sink created for every result.
func WithSinkOptions(sinkOpts ...sink.Option) Option {
	return func(opts *options) error {
		opts.sinkOpts = append(opts.sinkOpts, sinkOpts...)
		return nil
	}
}
