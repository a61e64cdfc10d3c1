package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// tempFile is the part of *os.File a sink writes through.
type tempFile interface {
	io.Writer
	Name() string
	Sync() error
	Close() error
}

func osCreateTemp(dir, pattern string) (tempFile, error) {
	return os.CreateTemp(dir, pattern)
}

// FileSink writes a result stream to a file path.
type FileSink struct {
	path       string
	opts       options
	createTemp func(dir, pattern string) (tempFile, error)
}

// NewFileSink returns a sink that writes to path.
func NewFileSink(path string, optFns ...Option) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("destination path must not be empty")
	}

	opts, err := defaults(optFns)
	if err != nil {
		return nil, fmt.Errorf("applying option: %w", err)
	}

	s := FileSink{
		path:       path,
		opts:       opts,
		createTemp: osCreateTemp,
	}

	return &s, nil
}

// Path returns the destination path.
func (s *FileSink) Path() string {
	return s.path
}

// Consume streams body to a temp file in the destination directory and
// renames it to the destination on success. On any error the temp file is
// removed and the destination is left untouched.
func (s *FileSink) Consume(ctx context.Context, body io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	return spool(ctx, s.createTemp, filepath.Dir(s.path), s.opts, body, size, s.path, func(tmp string) (bool, error) {
		if err := os.Rename(tmp, s.path); err != nil {
			return false, fmt.Errorf("%w: renaming temp file: %w", ErrIO, err)
		}
		return true, nil
	})
}

// spool writes body to a fresh temp file in dir and hands its name to
// finish once the file is complete and closed. The temp file is removed
// afterwards unless finish reports that it moved it away.
func spool(ctx context.Context, create func(dir, pattern string) (tempFile, error), dir string, opts options, body io.Reader, size int64, dest string, finish func(tmp string) (bool, error)) error {
	file, err := create(dir, ".koatap-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrIO, err)
	}
	logger := opts.logger

	var closed, moved bool
	defer func() {
		if !closed {
			if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				logger.Error("defer closing temp file", "error", err)
			}
		}
		if !moved {
			if err := os.Remove(file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Error("failed to remove temp file", "path", file.Name(), "error", err)
			}
		}
	}()

	var writer io.Writer = file
	if opts.progress {
		writer = &progressWriter{
			w:         writer,
			logger:    logger,
			dest:      dest,
			total:     size,
			startTime: time.Now(),
		}
	}

	n, err := copyStream(ctx, writer, body, opts.chunkSize)
	if err != nil {
		return err
	}

	if size >= 0 && n != size {
		return &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", size, n),
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing temp file: %w", ErrIO, err)
	}
	closed = true
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", ErrIO, err)
	}

	moved, err = finish(file.Name())

	return err
}
