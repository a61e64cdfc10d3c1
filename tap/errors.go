package tap

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is returned when the service answers in a way the
	// protocol does not allow, such as a 200 to an async submission.
	ErrProtocol = errors.New("unexpected service response")
	// ErrSubmission is returned when the service rejects a query with an
	// error envelope.
	ErrSubmission = errors.New("query rejected")
	// ErrJobFailed is returned when a job ends in the ERROR phase.
	ErrJobFailed = errors.New("job failed")
	// ErrPollLimit is returned when WithMaxPolls is set and the job is still
	// running after that many refreshes.
	ErrPollLimit = errors.New("poll limit reached")
	// ErrInvalidQuery is returned when a Query fails validation.
	ErrInvalidQuery = errors.New("invalid query")
)

// ProtocolError describes a response that fits none of the shapes the
// endpoint is allowed to return.
type ProtocolError struct {
	StatusCode  int
	ContentType string
	Body        string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v: status %d, content type %q, body: %s", ErrProtocol, e.StatusCode, e.ContentType, e.Body)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// SubmissionError carries the message of a {"status":"error"} envelope.
type SubmissionError struct {
	Msg string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrSubmission, e.Msg)
}

func (e *SubmissionError) Unwrap() error {
	return ErrSubmission
}

// JobError carries the server's error summary verbatim.
type JobError struct {
	JobID string
	Msg   string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%v: job %s: %s", ErrJobFailed, e.JobID, e.Msg)
}

func (e *JobError) Unwrap() error {
	return ErrJobFailed
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
