package uws_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/adamwoolhether/koatap/uws"
)

const statusURL = "https://koa.ipac.caltech.edu/TAP/async/123"

// script replays one document per fetch, repeating the last one.
type script struct {
	mu    sync.Mutex
	docs  [][]byte
	errs  []error
	calls int
}

func (s *script) FetchStatus(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if url != statusURL {
		return nil, errors.New("unexpected url " + url)
	}

	i := min(s.calls, len(s.docs)-1)
	s.calls++

	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}

	return s.docs[i], nil
}

func (s *script) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

var (
	executing = statusDoc("EXECUTING", "")
	completed = statusDoc("COMPLETED", `<uws:results><uws:result id="result" xlink:href="/result/123"/></uws:results><uws:endTime>2024-03-01T10:00:01Z</uws:endTime>`)
	failed    = statusDoc("ERROR", `<uws:errorSummary><uws:message>query timeout</uws:message></uws:errorSummary>`)
)

func TestNewJob(t *testing.T) {
	s := &script{docs: [][]byte{executing}}

	job, err := uws.NewJob(context.Background(), statusURL, s)
	if err != nil {
		t.Fatalf("exp no error, got: %v", err)
	}

	if s.count() != 1 {
		t.Errorf("exp 1 fetch on creation, got %d", s.count())
	}
	if job.StatusURL() != statusURL {
		t.Errorf("exp status url %q, got %q", statusURL, job.StatusURL())
	}
	if job.JobID() != "123" {
		t.Errorf("exp job id 123, got %q", job.JobID())
	}
	if job.Snapshot().Phase != uws.PhaseExecuting {
		t.Errorf("exp EXECUTING snapshot, got %s", job.Snapshot().Phase)
	}
}

func TestNewJob_Errors(t *testing.T) {
	boom := errors.New("connection reset")

	testCases := []struct {
		name    string
		url     string
		fetcher uws.Fetcher
		expErr  error
	}{
		{
			name: "transport failure",
			url:  statusURL,
			fetcher: uws.FetcherFunc(func(context.Context, string) ([]byte, error) {
				return nil, boom
			}),
			expErr: uws.ErrTransport,
		},
		{
			name: "malformed document",
			url:  statusURL,
			fetcher: uws.FetcherFunc(func(context.Context, string) ([]byte, error) {
				return []byte("<html>oops</html>"), nil
			}),
			expErr: uws.ErrMalformedStatus,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uws.NewJob(context.Background(), tc.url, tc.fetcher)
			if !errors.Is(err, tc.expErr) {
				t.Errorf("exp %v, got: %v", tc.expErr, err)
			}
		})
	}

	if _, err := uws.NewJob(context.Background(), "/async/123", &script{docs: [][]byte{executing}}); err == nil {
		t.Error("exp relative status url to be rejected")
	}
	if _, err := uws.NewJob(context.Background(), statusURL, nil); err == nil {
		t.Error("exp nil fetcher to be rejected")
	}
}

func TestJob_ResultURL(t *testing.T) {
	s := &script{docs: [][]byte{executing, executing, completed}}

	job, err := uws.NewJob(context.Background(), statusURL, s)
	if err != nil {
		t.Fatal(err)
	}

	// The second document is still EXECUTING.
	_, err = job.ResultURL(context.Background())
	if !errors.Is(err, uws.ErrNotTerminal) {
		t.Fatalf("exp ErrNotTerminal, got: %v", err)
	}

	got, err := job.ResultURL(context.Background())
	if err != nil {
		t.Fatalf("exp no error, got: %v", err)
	}
	if exp := "https://koa.ipac.caltech.edu/result/123"; got != exp {
		t.Errorf("exp %q, got %q", exp, got)
	}

	// Terminal phase is served from cache.
	calls := s.count()
	if phase, err := job.Phase(context.Background()); err != nil || phase != uws.PhaseCompleted {
		t.Errorf("exp COMPLETED, got %s (err=%v)", phase, err)
	}
	if s.count() != calls {
		t.Errorf("exp no refresh once terminal, got %d extra", s.count()-calls)
	}

	end, err := job.EndTime(context.Background())
	if err != nil || end.IsZero() {
		t.Errorf("exp end time, got %v (err=%v)", end, err)
	}

	if _, err := job.ErrorSummary(context.Background()); !errors.Is(err, uws.ErrFieldMissing) {
		t.Errorf("exp ErrFieldMissing for completed job, got: %v", err)
	}
	if _, err := job.Destruction(context.Background()); !errors.Is(err, uws.ErrFieldMissing) {
		t.Errorf("exp ErrFieldMissing for destruction, got: %v", err)
	}
}

func TestJob_ErrorSummary(t *testing.T) {
	s := &script{docs: [][]byte{executing, failed}}

	job, err := uws.NewJob(context.Background(), statusURL, s)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := job.ErrorSummary(context.Background())
	if err != nil {
		t.Fatalf("exp no error, got: %v", err)
	}
	if msg != "query timeout" {
		t.Errorf("exp %q, got %q", "query timeout", msg)
	}

	if _, err := job.ResultURL(context.Background()); !errors.Is(err, uws.ErrFieldMissing) {
		t.Errorf("exp ErrFieldMissing for failed job, got: %v", err)
	}
}

func TestJob_Refresh(t *testing.T) {
	moved := statusDoc("COMPLETED", `<uws:results><uws:result id="result" xlink:href="https://mirror.example.org/result/999"/></uws:results>`)
	boom := errors.New("timeout")

	t.Run("result url is fixed once set", func(t *testing.T) {
		s := &script{docs: [][]byte{completed, moved}}

		job, err := uws.NewJob(context.Background(), statusURL, s)
		if err != nil {
			t.Fatal(err)
		}

		st, err := job.Refresh(context.Background())
		if err != nil {
			t.Fatalf("exp no error, got: %v", err)
		}
		if exp := "https://koa.ipac.caltech.edu/result/123"; st.ResultURL != exp {
			t.Errorf("exp %q, got %q", exp, st.ResultURL)
		}
	})

	t.Run("terminal phase does not regress", func(t *testing.T) {
		s := &script{docs: [][]byte{completed, executing}}

		job, err := uws.NewJob(context.Background(), statusURL, s)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := job.Refresh(context.Background()); !errors.Is(err, uws.ErrMalformedStatus) {
			t.Fatalf("exp ErrMalformedStatus, got: %v", err)
		}
		if job.Snapshot().Phase != uws.PhaseCompleted {
			t.Errorf("exp snapshot to stay COMPLETED, got %s", job.Snapshot().Phase)
		}
	})

	t.Run("failed refresh keeps snapshot", func(t *testing.T) {
		s := &script{docs: [][]byte{executing, executing}, errs: []error{nil, boom}}

		job, err := uws.NewJob(context.Background(), statusURL, s)
		if err != nil {
			t.Fatal(err)
		}

		_, err = job.Refresh(context.Background())
		if !errors.Is(err, uws.ErrTransport) || !errors.Is(err, boom) {
			t.Fatalf("exp transport error wrapping cause, got: %v", err)
		}
		if job.Snapshot() == nil || job.Snapshot().Phase != uws.PhaseExecuting {
			t.Error("exp previous snapshot to be kept")
		}
	})

	t.Run("concurrent refreshes", func(t *testing.T) {
		s := &script{docs: [][]byte{executing}}

		job, err := uws.NewJob(context.Background(), statusURL, s)
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		for range 8 {
			wg.Go(func() {
				if _, err := job.Refresh(context.Background()); err != nil {
					t.Errorf("refresh: %v", err)
				}
			})
		}
		wg.Wait()

		if s.count() != 9 {
			t.Errorf("exp 9 fetches, got %d", s.count())
		}
	})
}
