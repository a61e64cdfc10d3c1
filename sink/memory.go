package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/adamwoolhether/koatap/table"
)

// MemorySink parses a result stream into a [table.Table].
type MemorySink struct {
	format     table.Format
	opts       options
	createTemp func(dir, pattern string) (tempFile, error)

	tbl      *table.Table
	tempPath string
}

// NewMemorySink returns a sink that parses the stream as format. An empty
// format means table.DefaultFormat.
func NewMemorySink(format table.Format, optFns ...Option) (*MemorySink, error) {
	format, err := table.ParseFormat(string(format))
	if err != nil {
		return nil, err
	}

	opts, err := defaults(optFns)
	if err != nil {
		return nil, fmt.Errorf("applying option: %w", err)
	}

	s := MemorySink{
		format:     format,
		opts:       opts,
		createTemp: osCreateTemp,
	}

	return &s, nil
}

// Consume spools body to a temp file, parses it and removes the temp file.
// Some formats need the whole document before a table can be built, which
// is why the stream is not parsed on the fly.
func (s *MemorySink) Consume(ctx context.Context, body io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	dir := s.opts.tempDir
	if dir == "" {
		dir = os.TempDir()
	}

	create := func(dir, pattern string) (tempFile, error) {
		f, err := s.createTemp(dir, pattern+s.format.Ext())
		if err == nil {
			s.tempPath = f.Name()
		}
		return f, err
	}

	return spool(ctx, create, dir, s.opts, body, size, "memory", func(tmp string) (bool, error) {
		f, err := os.Open(tmp)
		if err != nil {
			return false, fmt.Errorf("%w: reopening temp file: %w", ErrIO, err)
		}
		defer f.Close()

		tbl, err := table.Parse(s.format, f)
		if err != nil {
			return false, fmt.Errorf("parsing %s result: %w", s.format, err)
		}
		s.tbl = tbl

		return false, nil
	})
}

// Table returns the parsed table, nil until Consume succeeds.
func (s *MemorySink) Table() *table.Table {
	return s.tbl
}

// TempPath returns the temp file used by the last Consume call. The file
// no longer exists once Consume has returned.
func (s *MemorySink) TempPath() string {
	return s.tempPath
}
