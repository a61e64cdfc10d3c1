package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the copy buffer size used to move the stream.
const DefaultChunkSize = 4 << 10 // 4KB

var (
	// ErrIO marks a failure to create, write, sync or rename a local file.
	ErrIO = errors.New("local i/o failure")
	// ErrStream marks a failure to read the incoming stream.
	ErrStream                = errors.New("reading result stream")
	ErrCancelled             = errors.New("operation cancelled")
	ErrContentLengthMismatch = errors.New("content length mismatch")
)

// Sink consumes a result stream. size is the expected byte count, or -1
// when unknown.
type Sink interface {
	Consume(ctx context.Context, body io.Reader, size int64) error
}

// Error wraps a sentinel error with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// contextReader stops a copy once ctx ends.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}

// streamReader tags read failures with ErrStream so they can be told
// apart from write failures after io.Copy.
type streamReader struct {
	r io.Reader
}

func (sr streamReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrStream, err)
	}

	return n, err
}

// ioWriter tags write failures with ErrIO.
type ioWriter struct {
	w io.Writer
}

func (iw ioWriter) Write(p []byte) (int, error) {
	n, err := iw.w.Write(p)
	if err != nil {
		err = fmt.Errorf("%w: writing: %w", ErrIO, err)
	}

	return n, err
}

// copyStream moves body into w in chunkSize pieces, classifying the failure.
func copyStream(ctx context.Context, w io.Writer, body io.Reader, chunkSize int) (int64, error) {
	r := streamReader{r: &contextReader{ctx: ctx, r: body}}

	n, err := io.CopyBuffer(ioWriter{w: w}, r, make([]byte, chunkSize))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return n, fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		return n, err
	}

	return n, nil
}
