// Package session stores authenticated sessions in Redis and resolves them
// from request headers.
//
// # Binary encoding
//
// Sessions are stored as a compact versioned binary record. The first byte is
// the format version; Decode rejects versions it does not know.
//
// # Resolution
//
// A [Resolver] reads the access token from an "Authorization: Bearer" header
// or the session cookie, verifies it with a jwt.Manager and loads the session
// the token points at. A valid token whose session was deleted does not
// resolve, so sign-out takes effect immediately.
package session
