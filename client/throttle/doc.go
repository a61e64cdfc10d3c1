// Package throttle provides an [http.RoundTripper] that caps the rate of
// outbound requests using a token bucket from [golang.org/x/time/rate].
//
// A TAP client issues one status request per poll interval per job. When
// many jobs share a client, or the poll interval is tuned down, the
// limiter keeps the combined request rate under what the archive allows:
//
//	rt, err := throttle.NewRoundTripper(
//		2, // requests per second
//		4, // burst capacity
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// Requests over the limit block until a token is available or their
// context ends.
package throttle
