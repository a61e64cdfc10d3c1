// Package tap runs queries against an IVOA Table Access Protocol service
// such as the Keck Observatory Archive.
//
// A Service holds the endpoint, the credentials and the HTTP plumbing.
// Each call takes a Query value:
//
//	svc, err := tap.New("https://koa.ipac.caltech.edu/TAP",
//		tap.WithCookieFile("koa.cookies"),
//		tap.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//
//	res, err := svc.SubmitAsync(ctx, tap.Query{
//		ADQL:    "select koaid, filehand from koa_hires where koaid like 'HI.2019%'",
//		Format:  table.FormatIPAC,
//		OutPath: "hires.tbl",
//	})
//
// SubmitAsync is Submit, Wait and Fetch in sequence. The steps are exported
// for callers that want to keep the job handle, for example to report its
// status URL before the job finishes. Wait has no deadline of its own;
// bound it with the context or WithMaxPolls.
//
// A Query without OutPath keeps the result in memory and returns it as a
// parsed table.Table.
//
// Every failure matches one of the sentinel errors of this package with
// errors.Is. Nothing is retried.
package tap
