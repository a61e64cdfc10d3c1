package uws

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedStatus is returned when a status document cannot be used:
	// it does not decode, has no phase, or lacks the field its phase requires.
	ErrMalformedStatus = errors.New("malformed status document")
	// ErrTransport wraps failures to retrieve a status document.
	ErrTransport = errors.New("fetching status document")
	// ErrNotTerminal is returned by accessors for terminal-only fields when
	// the job is still running after a refresh.
	ErrNotTerminal = errors.New("job has not finished")
	// ErrFieldMissing is returned when a terminal job lacks the requested field.
	ErrFieldMissing = errors.New("field not present in status document")
)

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

func malformed(format string, args ...any) error {
	return &Error{Err: ErrMalformedStatus, Detail: fmt.Sprintf(format, args...)}
}
