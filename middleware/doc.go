// Package middleware holds the request middleware in front of pages:
// the session gate that sends anonymous visitors to the sign-in page, a path
// matcher that scopes middleware to page routes, and a pass-through.
package middleware
