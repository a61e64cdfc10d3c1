package tap

import (
	"github.com/adamwoolhether/koatap/client"
	"github.com/adamwoolhether/koatap/sink"
	"github.com/adamwoolhether/koatap/uws"
)

// Errors raised by the packages a Service is built on, re-exported so
// callers can match every failure against this package alone.
var (
	ErrTransport       = client.ErrTransport
	ErrAuthFailure     = client.ErrAuthFailure
	ErrMalformedStatus = uws.ErrMalformedStatus
	ErrIO              = sink.ErrIO
	ErrStream          = sink.ErrStream
	ErrCancelled       = sink.ErrCancelled
)
