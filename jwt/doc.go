// Package jwt issues and verifies the short-lived access tokens that point at
// a Redis-held session. Tokens carry the user id, session id and email only.
package jwt
