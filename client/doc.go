// Package client provides the HTTP transport used to talk to a TAP
// service, built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(30 * time.Second),
//		client.WithUserAgent("koatap/1.0"),
//		client.WithNoFollowRedirects(),
//	)
//
// # Making Requests
//
// Construct a [Request] and execute it with [Client.Exec]:
//
//	u, _ := url.Parse("https://koa.ipac.caltech.edu/TAP/sync")
//	req, err := client.Request(ctx, u, http.MethodPost, client.WithForm(form))
//	err = c.Exec(req, http.StatusOK, func(resp *http.Response) error {
//		_, err := io.Copy(dst, resp.Body)
//		return err
//	})
//
// # Inspecting Responses
//
// [Client.Exec] hands the response to a func once the expected status
// code is confirmed. [Client.Handle] hands over every response, which is
// what a UWS submission needs: a 303 redirect and a JSON error envelope
// are both valid answers.
//
// # Session State
//
// [WithAttacher] decorates every outgoing request, for instance with the
// cookies of a [github.com/adamwoolhether/koatap/credential.Store].
package client
