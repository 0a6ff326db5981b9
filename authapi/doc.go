// Package authapi is the authentication handler behind the protected route:
// email sign-up and sign-in, sign-out, session lookup and a health probe.
//
// Users and sessions live in Redis. A successful sign-in issues a signed
// access token that names a stored session; the token is returned in the
// body and set as an HttpOnly cookie.
package authapi
