package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/authshield/jwt"
)

// DefaultCookieName carries the access token for browser clients.
const DefaultCookieName = "authshield.session_token"

var (
	// ErrNoCredentials means the request carried neither a bearer token nor a session cookie.
	ErrNoCredentials = errors.New("no session credentials")
	// ErrSessionMismatch means the token's user does not own the session it names.
	ErrSessionMismatch = errors.New("session does not belong to token subject")
)

// Resolver turns request headers into a live session.
type Resolver struct {
	Tokens     *jwt.Manager
	Store      *Store
	CookieName string
}

// Resolve returns the session named by the request's access token.
func (r *Resolver) Resolve(ctx context.Context, header http.Header) (*Session, error) {
	token := Token(header, r.cookieName())
	if token == "" {
		return nil, ErrNoCredentials
	}

	claims, err := r.Tokens.ParseAccess(token)
	if err != nil {
		return nil, err
	}

	sess, err := r.Store.Get(ctx, claims.SID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UID {
		return nil, fmt.Errorf("%w: session %s", ErrSessionMismatch, claims.SID)
	}
	return sess, nil
}

// UserID reports the user behind header, if any session resolves.
func (r *Resolver) UserID(ctx context.Context, header http.Header) (string, bool) {
	sess, err := r.Resolve(ctx, header)
	if err != nil {
		return "", false
	}
	return sess.UserID, true
}

func (r *Resolver) cookieName() string {
	if r.CookieName == "" {
		return DefaultCookieName
	}
	return r.CookieName
}

// Token extracts the access token: the bearer header wins over the cookie.
func Token(header http.Header, cookieName string) string {
	if auth := header.Get("Authorization"); auth != "" {
		if scheme, value, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value)
		}
	}
	if cookieName == "" {
		return ""
	}
	req := http.Request{Header: header}
	c, err := req.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
