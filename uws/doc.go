// Package uws reads IVOA Universal Worker Service job documents and tracks
// a single job through its lifecycle.
//
// A Job is created from the status URL the service returns when a query is
// submitted. It caches the last parsed Status and refreshes it from the
// server through a Fetcher:
//
//	job, err := uws.NewJob(ctx, statusURL, fetcher, uws.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//
//	phase, err := job.Phase(ctx)
//
// Only COMPLETED and ERROR are treated as terminal. Once a job reaches one
// of them its phase and result reference no longer change.
package uws
