package protect

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// LoopbackFingerprint keys the rate limit when neither a session nor a client
// address is available.
const LoopbackFingerprint = "127.0.0.1"

// Identity resolves the authenticated user id from request headers.
// ok is false when no session resolves.
type Identity interface {
	UserID(ctx context.Context, header http.Header) (id string, ok bool)
}

// IdentityFunc adapts a function to Identity.
type IdentityFunc func(ctx context.Context, header http.Header) (string, bool)

func (f IdentityFunc) UserID(ctx context.Context, header http.Header) (string, bool) {
	return f(ctx, header)
}

// Classifier selects the rule for a protected request.
type Classifier struct {
	// SignInPath and SignOutPath are path prefixes, e.g. "/api/auth/sign-in".
	SignInPath  string
	SignOutPath string
	Identity    Identity
	ClientIP    func(*http.Request) string
}

// Classify picks exactly one rule. body is the request body already read by
// the caller; a body that is empty, not JSON, or lacks a string "email" on a
// sign-in path falls through to the rate limit.
func (c *Classifier) Classify(ctx context.Context, r *http.Request, body []byte) Rule {
	path := r.URL.Path

	if c.SignInPath != "" && strings.HasPrefix(path, c.SignInPath) {
		if email, ok := emailFromBody(body); ok {
			return EmailValidation(email)
		}
	}

	if c.SignOutPath != "" && strings.HasPrefix(path, c.SignOutPath) {
		return ShieldValidation()
	}

	return RateLimit(c.fingerprint(ctx, r))
}

func (c *Classifier) fingerprint(ctx context.Context, r *http.Request) string {
	if c.Identity != nil {
		if id, ok := c.Identity.UserID(ctx, r.Header); ok && id != "" {
			return id
		}
	}
	if c.ClientIP != nil {
		if ip := c.ClientIP(r); ip != "" {
			return ip
		}
	}
	return LoopbackFingerprint
}

func emailFromBody(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	var payload struct {
		Email json.RawMessage `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	// only a JSON string counts; null, numbers and objects fall through
	if len(payload.Email) == 0 || payload.Email[0] != '"' {
		return "", false
	}
	var email string
	if err := json.Unmarshal(payload.Email, &email); err != nil {
		return "", false
	}
	return email, true
}
