// Package koatap queries the Keck Observatory Archive through its IVOA
// TAP interface. It wires the config file, the environment and the
// credential store into a [tap.Service]; see package tap for the query
// API itself.
package koatap

import (
	"fmt"
	"os"

	"github.com/adamwoolhether/koatap/config"
	"github.com/adamwoolhether/koatap/tap"
)

// New returns a Service for the KOA TAP endpoint.
// If not specified, the default http.Client and http.Transport are used
// and requests are anonymous.
func New(opts ...tap.Option) (*tap.Service, error) {
	return tap.New(config.DefaultBaseURL, opts...)
}

// NewFromProfile returns a Service built from the named profile of the
// config file at config.Path(), or its current profile when name is
// empty. KOATAP_* environment variables override the profile, opts are
// applied last.
func NewFromProfile(name string, opts ...tap.Option) (*tap.Service, error) {
	f, err := config.LoadOrEmpty(config.Path())
	if err != nil {
		return nil, err
	}

	env, err := config.FromEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}

	p, err := config.Resolve(f.Active(name), env, nil)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}

	return tap.New(p.BaseURL, append(p.ServiceOptions(), opts...)...)
}
