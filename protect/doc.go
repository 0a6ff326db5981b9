// Package protect guards the authentication route.
//
// A POST to the route is classified into exactly one [Rule] (email
// validation on sign-in, shield on sign-out, sliding-window rate limit
// otherwise), the [Service] decides it, and [Endpoint] maps the [Decision] to
// either forwarding the request to the authentication handler or a typed error
// response. The classify+decide task races a timeout; when the timeout wins the
// task's context is cancelled and its result discarded. Timeouts and service
// errors fail open or closed according to [Options.FailOpen].
//
// Every response written by [Endpoint], including forwarded ones and CORS
// preflights, carries the CORS headers resolved once per request.
//
// # What this package must NOT do
//
//   - Read the process environment. Mode-dependent behaviour arrives through [Options].
//   - Retry a decision. One evaluation is made per request.
package protect
