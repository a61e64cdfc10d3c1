// Package config reads and writes the koatap profile file,
// ~/.koatap/config.yaml, and resolves the settings a Service is built
// from. Values are taken from, in order of precedence, command line
// flags, KOATAP_* environment variables, the active profile and the
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/koatap/tap"
	"github.com/adamwoolhether/koatap/table"
)

// DefaultBaseURL is the Keck Observatory Archive TAP endpoint.
const DefaultBaseURL = "https://koa.ipac.caltech.edu/TAP"

// DefaultProfile is used when the file names no current profile.
const DefaultProfile = "default"

// EnvPrefix prefixes the environment variable of every key.
const EnvPrefix = "KOATAP_"

// ErrUnknownKey is returned for a key no Profile field answers to.
var ErrUnknownKey = errors.New("unknown config key")

// File is the on-disk layout of config.yaml.
type File struct {
	CurrentProfile string             `yaml:"current-profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile is one named set of settings. Zero values mean "not set".
type Profile struct {
	BaseURL      string        `yaml:"base-url,omitempty" json:"base-url" validate:"omitempty,url"`
	CookieFile   string        `yaml:"cookie-file,omitempty" json:"cookie-file"`
	Format       string        `yaml:"format,omitempty" json:"format" validate:"omitempty,oneof=votable ipac csv tsv"`
	MaxRec       int           `yaml:"maxrec,omitempty" json:"maxrec" validate:"gte=0"`
	PollInterval time.Duration `yaml:"poll-interval,omitempty" json:"poll-interval" validate:"gte=0"`
	UserAgent    string        `yaml:"user-agent,omitempty" json:"user-agent"`
	RPS          int           `yaml:"rps,omitempty" json:"rps" validate:"gte=0"`
	Burst        int           `yaml:"burst,omitempty" json:"burst" validate:"gte=0"`
	Timeout      time.Duration `yaml:"timeout,omitempty" json:"timeout" validate:"gte=0"`
}

// Default returns the built-in settings.
func Default() Profile {
	return Profile{
		BaseURL:      DefaultBaseURL,
		Format:       string(table.DefaultFormat),
		PollInterval: tap.DefaultPollInterval,
	}
}

// Dir returns ~/.koatap.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".koatap")
}

// Path returns the config file location. KOATAP_CONFIG overrides
// ~/.koatap/config.yaml.
func Path() string {
	if v := os.Getenv(EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the config file at path. A missing file yields an error
// matching os.ErrNotExist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	if f.CurrentProfile == "" {
		f.CurrentProfile = DefaultProfile
	}

	return &f, nil
}

// LoadOrEmpty is Load, with a missing file treated as an empty one.
func LoadOrEmpty(path string) (*File, error) {
	f, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return &File{CurrentProfile: DefaultProfile, Profiles: map[string]Profile{}}, nil
	}

	return f, err
}

// Save writes f to path, creating its directory.
func Save(path string, f *File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Active returns the profile named by override, or the current profile
// when override is empty. Unknown names yield an empty Profile.
func (f *File) Active(override string) Profile {
	name := f.CurrentProfile
	if override != "" {
		name = override
	}
	return f.Profiles[name]
}

// Validate checks the profile's values.
func (p Profile) Validate() error {
	return tap.Validate(p)
}

// Merge returns p with every non-zero field of over replacing its own.
// It layers profiles, where zero means "not set"; explicit overrides go
// through Apply.
func (p Profile) Merge(over Profile) Profile {
	if over.BaseURL != "" {
		p.BaseURL = over.BaseURL
	}
	if over.CookieFile != "" {
		p.CookieFile = over.CookieFile
	}
	if over.Format != "" {
		p.Format = over.Format
	}
	if over.MaxRec != 0 {
		p.MaxRec = over.MaxRec
	}
	if over.PollInterval != 0 {
		p.PollInterval = over.PollInterval
	}
	if over.UserAgent != "" {
		p.UserAgent = over.UserAgent
	}
	if over.RPS != 0 {
		p.RPS = over.RPS
	}
	if over.Burst != 0 {
		p.Burst = over.Burst
	}
	if over.Timeout != 0 {
		p.Timeout = over.Timeout
	}

	return p
}

// Overrides holds the raw values of keys set explicitly on the command
// line or in the environment. A present key wins even when its value is
// zero, so "--maxrec 0" lifts a row limit set by a profile.
type Overrides map[string]string

// Apply returns p with every key in o assigned, in sorted key order.
func (p Profile) Apply(o Overrides) (Profile, error) {
	names := make([]string, 0, len(o))
	for k := range o {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		if err := p.Set(k, o[k]); err != nil {
			return Profile{}, fmt.Errorf("%s: %w", k, err)
		}
	}

	return p, nil
}

// FromEnv collects the KOATAP_<KEY> variables, where KEY is the
// upper-cased key with dashes turned into underscores. Empty variables
// are ignored. Values are checked here so errors name the variable.
func FromEnv(lookup func(string) (string, bool)) (Overrides, error) {
	o := Overrides{}
	for _, key := range Keys() {
		v, ok := lookup(EnvName(key))
		if !ok || v == "" {
			continue
		}

		var scratch Profile
		if err := scratch.Set(key, v); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvName(key), err)
		}
		o[key] = v
	}

	return o, nil
}

// Resolve layers the built-in defaults, the profile, then env and flags.
func Resolve(profile Profile, env, flags Overrides) (Profile, error) {
	p, err := Default().Merge(profile).Apply(env)
	if err != nil {
		return Profile{}, err
	}

	return p.Apply(flags)
}

// EnvName returns the environment variable for key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

var keys = map[string]func(p *Profile, v string) error{
	"base-url":      func(p *Profile, v string) error { p.BaseURL = v; return nil },
	"cookie-file":   func(p *Profile, v string) error { p.CookieFile = v; return nil },
	"format":        func(p *Profile, v string) error { p.Format = strings.ToLower(v); return nil },
	"maxrec":        intKey(func(p *Profile) *int { return &p.MaxRec }),
	"poll-interval": durationKey(func(p *Profile) *time.Duration { return &p.PollInterval }),
	"user-agent":    func(p *Profile, v string) error { p.UserAgent = v; return nil },
	"rps":           intKey(func(p *Profile) *int { return &p.RPS }),
	"burst":         intKey(func(p *Profile) *int { return &p.Burst }),
	"timeout":       durationKey(func(p *Profile) *time.Duration { return &p.Timeout }),
}

func intKey(field func(*Profile) *int) func(*Profile, string) error {
	return func(p *Profile, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing integer: %w", err)
		}
		*field(p) = n
		return nil
	}
}

func durationKey(field func(*Profile) *time.Duration) func(*Profile, string) error {
	return func(p *Profile, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing duration: %w", err)
		}
		*field(p) = d
		return nil
	}
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// Set assigns the string form of a value to key.
func (p *Profile) Set(key, value string) error {
	set, ok := keys[key]
	if !ok {
		return fmt.Errorf("%w: %q (valid keys: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}

	return set(p, strings.TrimSpace(value))
}

// ServiceOptions translates the profile into options for tap.New. The
// base URL is not an option; pass p.BaseURL to tap.New directly.
func (p Profile) ServiceOptions() []tap.Option {
	var opts []tap.Option
	if p.CookieFile != "" {
		opts = append(opts, tap.WithCookieFile(expandHome(p.CookieFile)))
	}
	if p.Format != "" {
		opts = append(opts, tap.WithFormat(table.Format(p.Format)))
	}
	if p.PollInterval > 0 {
		opts = append(opts, tap.WithPollInterval(p.PollInterval))
	}
	if p.UserAgent != "" {
		opts = append(opts, tap.WithUserAgent(p.UserAgent))
	}
	if p.RPS > 0 {
		opts = append(opts, tap.WithRateLimit(p.RPS, max(p.Burst, 1)))
	}
	if p.Timeout > 0 {
		opts = append(opts, tap.WithTimeout(p.Timeout))
	}

	return opts
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, rest)
}
