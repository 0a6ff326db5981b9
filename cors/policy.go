package cors

import (
	"net/http"
	"strings"
)

const (
	// DefaultLocalhostPrefix matches local frontends on any port.
	DefaultLocalhostPrefix = "http://localhost:"
	// DefaultFallbackOrigin is used in development when the request origin is not local.
	DefaultFallbackOrigin = "http://localhost:3001"
	// Wildcard is returned in production when no frontend URL is configured.
	Wildcard = "*"
)

const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"

	allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders = "Content-Type, Authorization"
)

// Policy holds the inputs of origin resolution. The zero value behaves as a
// production policy with no frontend URL.
type Policy struct {
	Development     bool
	FrontendURL     string
	FallbackOrigin  string
	LocalhostPrefix string
}

// Resolve returns the origin to advertise for a request carrying requestOrigin
// (empty when the header is absent).
func (p Policy) Resolve(requestOrigin string) string {
	if p.Development {
		prefix := p.LocalhostPrefix
		if prefix == "" {
			prefix = DefaultLocalhostPrefix
		}
		if requestOrigin != "" && strings.HasPrefix(requestOrigin, prefix) {
			return requestOrigin
		}
		if p.FallbackOrigin != "" {
			return p.FallbackOrigin
		}
		return DefaultFallbackOrigin
	}

	if p.FrontendURL != "" {
		return p.FrontendURL
	}
	return Wildcard
}

// ResolveRequest resolves the origin from r's Origin header.
func (p Policy) ResolveRequest(r *http.Request) string {
	if r == nil {
		return p.Resolve("")
	}
	return p.Resolve(r.Header.Get("Origin"))
}

// ResolveOrigin resolves with the default prefix and fallback origin.
func ResolveOrigin(requestOrigin string, isDevelopment bool, frontendURL string) string {
	return Policy{Development: isDevelopment, FrontendURL: frontendURL}.Resolve(requestOrigin)
}

// Headers returns a fresh header set for origin.
func Headers(origin string) http.Header {
	h := make(http.Header, 4)
	Apply(h, origin)
	return h
}

// Apply sets the CORS headers for origin on dst, replacing existing values.
func Apply(dst http.Header, origin string) {
	dst.Set(HeaderAllowOrigin, origin)
	dst.Set(HeaderAllowMethods, allowedMethods)
	dst.Set(HeaderAllowHeaders, allowedHeaders)
	dst.Set(HeaderAllowCredentials, "true")
}
