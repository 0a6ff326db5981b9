package middleware

import (
	"net/http"
	"strings"
)

// DefaultExclusions are the path prefixes page middleware never runs on.
var DefaultExclusions = []string{"api", "_next/static", "_next/image", "favicon.ico", "sign-in", "assets"}

// Matcher selects the paths page middleware applies to. Exclusions are plain
// prefixes of the path after its leading slash, so "api" also excludes "/apiary".
type Matcher struct {
	Exclude []string
}

// DefaultMatcher excludes DefaultExclusions.
func DefaultMatcher() Matcher {
	return Matcher{Exclude: DefaultExclusions}
}

// Match reports whether path is in scope.
func (m Matcher) Match(path string) bool {
	rest := strings.TrimPrefix(path, "/")
	for _, ex := range m.Exclude {
		if strings.HasPrefix(rest, ex) {
			return false
		}
	}
	return true
}

// Scope applies mw only to requests whose path m matches.
func Scope(m Matcher, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Match(r.URL.Path) {
				wrapped.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Passthrough forwards every request unchanged.
func Passthrough() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}
