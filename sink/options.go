package sink

import (
	"errors"
	"log/slog"
)

// Option configures a FileSink or MemorySink.
type Option func(*options) error

type options struct {
	logger    *slog.Logger
	progress  bool
	chunkSize int
	tempDir   string
}

func defaults(optFns []Option) (options, error) {
	opts := options{
		logger:    slog.Default(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return options{}, err
		}
	}

	return opts, nil
}

// WithLogger sets the logger used for progress and cleanup messages.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}

// WithProgress logs transfer progress at most once per second.
func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(opts *options) error {
		if n <= 0 {
			return errors.New("chunk size must be greater than zero")
		}
		opts.chunkSize = n
		return nil
	}
}

// WithTempDir sets where MemorySink spools the stream. It defaults to
// os.TempDir.
func WithTempDir(dir string) Option {
	return func(opts *options) error {
		opts.tempDir = dir
		return nil
	}
}
