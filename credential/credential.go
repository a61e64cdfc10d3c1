// Package credential loads the session cookies written by the archive's
// login tool and attaches them to outgoing requests.
//
// The cookie file uses the Netscape/Mozilla cookies.txt layout, one
// cookie per line with seven tab-separated fields:
//
//	domain  include-subdomains  path  secure  expiry  name  value
//
// A store is read-only once loaded and safe to share between queries.
// An empty path or a missing file yields an anonymous store, which is how
// public data is queried.
package credential

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

var (
	ErrIO    = errors.New("reading credential file")
	ErrParse = errors.New("parsing credential file")
)

// Error reports a malformed line in a cookie file.
type Error struct {
	Path string
	Line int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Entry is one cookie from the file.
type Entry struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	HTTPOnly          bool
	// Expires is zero for session cookies.
	Expires time.Time
	// Discard marks a session cookie, one the browser would drop on exit.
	Discard bool
	Name    string
	Value   string
}

// Store holds the cookies of one credential file.
type Store struct {
	path string

	mu      sync.RWMutex
	entries []Entry
}

// Load reads the cookie file at path. An empty path or a file that does
// not exist produce an anonymous store and no error.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}

	return s, nil
}

// Open is Load for client construction: a cookie file that cannot be read
// or parsed is logged and replaced by an anonymous store, so queries on
// public data still go through.
func Open(path string, logger *slog.Logger) *Store {
	s, err := Load(path)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("credentials unavailable, continuing anonymously", "path", path, "error", err)

		return &Store{path: path}
	}

	return s
}

// Reload re-reads the backing file, replacing the current entries.
// On failure the current entries are kept.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.set(nil)
			return nil
		}

		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	entries, err := parse(s.path, bytes.NewReader(data))
	if err != nil {
		return err
	}

	s.set(entries)

	return nil
}

// Path returns the file the store was loaded from.
func (s *Store) Path() string {
	return s.path
}

// Anonymous reports whether the store has no cookies to send.
func (s *Store) Anonymous() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries) == 0
}

// Entries returns a copy of the loaded cookies in file order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.entries)
}

// Attach adds the cookies matching r's URL to r. It is a no-op for an
// anonymous store. Expiry is deliberately not checked: the login tool
// writes session cookies the archive keeps honouring.
func (s *Store) Attach(r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || r.URL == nil {
		return
	}

	host := strings.ToLower(r.URL.Hostname())
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	secure := r.URL.Scheme == "https"

	for _, e := range s.entries {
		if e.Secure && !secure {
			continue
		}
		if !e.matchesDomain(host) || !matchesPath(e.Path, path) {
			continue
		}

		r.AddCookie(&http.Cookie{Name: e.Name, Value: e.Value})
	}
}

func (s *Store) set(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = entries
}

func (e Entry) matchesDomain(host string) bool {
	domain := strings.ToLower(strings.TrimPrefix(e.Domain, "."))
	if host == domain {
		return true
	}

	// A leading dot in the file implies subdomain matching regardless of the flag.
	if e.IncludeSubdomains || strings.HasPrefix(e.Domain, ".") {
		return strings.HasSuffix(host, "."+domain)
	}

	return false
}

func matchesPath(cookiePath, reqPath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}

	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func parse(path string, r io.Reader) ([]Entry, error) {
	var entries []Entry

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), "\r")

		var httpOnly bool
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}

		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, err := parseLine(line)
		if err != nil {
			return nil, &Error{Path: path, Line: n, Err: fmt.Errorf("%w: %w", ErrParse, err)}
		}
		e.HTTPOnly = httpOnly

		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return entries, nil
}

func parseLine(line string) (Entry, error) {
	fields := strings.Split(line, "\t")
	switch len(fields) {
	case 7:
	case 6:
		// Some writers drop the trailing tab of an empty value.
		fields = append(fields, "")
	default:
		return Entry{}, fmt.Errorf("expected 7 tab-separated fields, got %d", len(fields))
	}

	sub, err := parseFlag(fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("include-subdomains: %w", err)
	}

	secure, err := parseFlag(fields[3])
	if err != nil {
		return Entry{}, fmt.Errorf("secure: %w", err)
	}

	e := Entry{
		Domain:            fields[0],
		IncludeSubdomains: sub,
		Path:              fields[2],
		Secure:            secure,
		Name:              fields[5],
		Value:             fields[6],
	}

	if e.Domain == "" || e.Name == "" {
		return Entry{}, errors.New("domain and name must not be empty")
	}

	switch exp := strings.TrimSpace(fields[4]); exp {
	case "", "0":
		e.Discard = true
	default:
		secs, err := strconv.ParseInt(exp, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("expiry: %w", err)
		}
		e.Expires = time.Unix(secs, 0).UTC()
	}

	return e, nil
}

func parseFlag(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	}

	return false, fmt.Errorf("invalid flag %q", s)
}
