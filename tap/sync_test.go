package tap_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adamwoolhether/koatap/internal/taptest"
	"github.com/adamwoolhether/koatap/sink"
	"github.com/adamwoolhether/koatap/tap"
	"github.com/adamwoolhether/koatap/table"
)

func TestSubmitSync(t *testing.T) {
	const csvResult = "koaid,filehand\nHI.1,/koadata/HI.1.fits\nHI.2,/koadata/HI.2.fits\n"
	const jsonResult = `{"status":"ok","rows":[["HI.1"]]}`

	testCases := []struct {
		name    string
		opts    []taptest.Option
		query   tap.Query
		toFile  bool
		expBody string
		expRows int
		expErr  error
	}{
		{
			name:    "csv in memory",
			opts:    []taptest.Option{taptest.WithResult("text/csv", []byte(csvResult))},
			query:   tap.Query{ADQL: "select koaid, filehand from koa_hires", Format: table.FormatCSV},
			expRows: 2,
		},
		{
			name:    "votable to file",
			query:   tap.Query{ADQL: "select koaid, filehand from koa_hires"},
			toFile:  true,
			expBody: taptest.VOTable,
		},
		{
			name:    "json without error envelope is the result",
			opts:    []taptest.Option{taptest.WithResult("application/json; charset=utf-8", []byte(jsonResult))},
			query:   tap.Query{ADQL: "select koaid from koa_hires", Format: table.FormatCSV},
			toFile:  true,
			expBody: jsonResult,
		},
		{
			name:   "error envelope",
			opts:   []taptest.Option{taptest.WithSyncError("table koa_nope does not exist")},
			query:  tap.Query{ADQL: "select * from koa_nope"},
			expErr: tap.ErrSubmission,
		},
		{
			name:   "invalid query",
			query:  tap.Query{MaxRec: 5},
			expErr: tap.ErrInvalidQuery,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := taptest.New(t, tc.opts...)
			svc := newService(t, srv)

			q := tc.query
			if tc.toFile {
				q.OutPath = filepath.Join(t.TempDir(), "sync.out")
			}

			res, err := svc.SubmitSync(context.Background(), q)
			if tc.expErr != nil {
				if !errors.Is(err, tc.expErr) {
					t.Fatalf("exp %v, got: %v", tc.expErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("exp no error, got: %v", err)
			}

			if res.ResultURL != srv.URL+"/sync" {
				t.Errorf("exp result url %q, got %q", srv.URL+"/sync", res.ResultURL)
			}
			if res.JobID != "" || res.StatusURL != "" {
				t.Errorf("exp no job for a sync query, got %+v", res)
			}

			if tc.toFile {
				got, err := os.ReadFile(q.OutPath)
				if err != nil {
					t.Fatalf("reading output: %v", err)
				}
				if string(got) != tc.expBody {
					t.Errorf("exp output %q, got %q", tc.expBody, got)
				}
				return
			}

			if res.Table == nil || res.Table.NumRows() != tc.expRows {
				t.Errorf("exp %d rows, got %+v", tc.expRows, res.Table)
			}
		})
	}
}

func TestSubmitSync_Form(t *testing.T) {
	srv := taptest.New(t)
	svc := newService(t, srv)

	if _, err := svc.SubmitSync(context.Background(), tap.Query{ADQL: "select 1", MaxRec: 3}); err != nil {
		t.Fatalf("exp no error, got: %v", err)
	}

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("exp a single round trip, got %d requests", len(reqs))
	}

	form := reqs[0].Form
	if reqs[0].Method != http.MethodPost || reqs[0].Path != "/sync" {
		t.Errorf("exp POST /sync, got %s %s", reqs[0].Method, reqs[0].Path)
	}
	if form.Has("phase") {
		t.Error("exp no phase for sync queries")
	}
	for k, exp := range map[string]string{"request": "doQuery", "lang": "ADQL", "maxrec": "3", "query": "select 1"} {
		if got := form.Get(k); got != exp {
			t.Errorf("exp %s=%q, got %q", k, exp, got)
		}
	}
}

func TestService_SinkOptionsReused(t *testing.T) {
	srv := taptest.New(t)
	svc := newService(t, srv, tap.WithSinkOptions(sink.WithProgress(), sink.WithChunkSize(64)))

	for i := range 3 {
		res, err := svc.SubmitSync(context.Background(), tap.Query{ADQL: "select koaid, filehand from koa_hires"})
		if err != nil {
			t.Fatalf("query %d: exp no error, got: %v", i+1, err)
		}
		if res.Table.NumRows() != 1 {
			t.Errorf("query %d: exp 1 row, got %d", i+1, res.Table.NumRows())
		}
	}
}

func TestService_Credentials(t *testing.T) {
	srv := taptest.New(t)

	cookies := filepath.Join(t.TempDir(), "koa.cookies")
	contents := "# Netscape HTTP Cookie File\n127.0.0.1\tFALSE\t/\tFALSE\t0\tKOA_USER\talice\n"
	if err := os.WriteFile(cookies, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	svc := newService(t, srv, tap.WithCookieFile(cookies), tap.WithUserAgent("koatap-test"))
	if svc.Credentials().Anonymous() {
		t.Fatal("exp credentials to be loaded")
	}

	if _, err := svc.SubmitAsync(context.Background(), tap.Query{ADQL: "select 1"}); err != nil {
		t.Fatalf("exp no error, got: %v", err)
	}

	reqs := srv.Requests()
	if len(reqs) != 4 {
		t.Fatalf("exp submit, 2 status fetches and a result fetch, got %d requests", len(reqs))
	}
	for _, r := range reqs {
		if len(r.Cookies) != 1 || r.Cookies[0].Name != "KOA_USER" || r.Cookies[0].Value != "alice" {
			t.Errorf("%s %s: exp KOA_USER cookie, got %v", r.Method, r.Path, r.Cookies)
		}
		if ua := r.Header.Get("User-Agent"); ua != "koatap-test" {
			t.Errorf("%s %s: exp user agent koatap-test, got %q", r.Method, r.Path, ua)
		}
	}
}

func TestService_MissingCookieFile(t *testing.T) {
	srv := taptest.New(t)
	svc := newService(t, srv, tap.WithCookieFile(filepath.Join(t.TempDir(), "absent.cookies")))

	if !svc.Credentials().Anonymous() {
		t.Error("exp anonymous credentials")
	}
	if _, err := svc.SubmitAsync(context.Background(), tap.Query{ADQL: "select 1"}); err != nil {
		t.Fatalf("exp anonymous query to succeed, got: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	testCases := []struct {
		name string
		url  string
		opts []tap.Option
	}{
		{name: "relative url", url: "/TAP"},
		{name: "bad poll interval", url: "https://koa.ipac.caltech.edu/TAP", opts: []tap.Option{tap.WithPollInterval(0)}},
		{name: "bad rate limit", url: "https://koa.ipac.caltech.edu/TAP", opts: []tap.Option{tap.WithRateLimit(0, 1)}},
		{name: "bad format", url: "https://koa.ipac.caltech.edu/TAP", opts: []tap.Option{tap.WithFormat("fits")}},
		{name: "nil logger", url: "https://koa.ipac.caltech.edu/TAP", opts: []tap.Option{tap.WithLogger(nil)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tap.New(tc.url, tc.opts...); err == nil {
				t.Error("exp error")
			}
		})
	}
}

func TestService_RateLimit(t *testing.T) {
	srv := taptest.New(t)
	svc := newService(t, srv, tap.WithRateLimit(50, 1))

	start := time.Now()
	if _, err := svc.SubmitAsync(context.Background(), tap.Query{ADQL: "select 1"}); err != nil {
		t.Fatalf("exp no error, got: %v", err)
	}

	// Four requests at 50 rps with no burst headroom take at least 60ms.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("exp requests to be spaced out, took %v", elapsed)
	}
}
