package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authshield/audit"
	"github.com/MrEthical07/authshield/metrics"
	"github.com/MrEthical07/authshield/session"
)

// Gate resolves a session from request headers. *session.Resolver satisfies it.
type Gate interface {
	Resolve(ctx context.Context, header http.Header) (*session.Session, error)
}

type sessionContextKey struct{}

// SessionFromContext returns the session RequireSession stored for the request.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// GateOption configures RequireSession.
type GateOption func(*gateConfig)

type gateConfig struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   audit.Sink
}

// WithLogger sets the logger for store failures.
func WithLogger(l *slog.Logger) GateOption {
	return func(c *gateConfig) { c.logger = l }
}

// WithMetrics counts redirects to the sign-in page.
func WithMetrics(m *metrics.Metrics) GateOption {
	return func(c *gateConfig) { c.metrics = m }
}

// WithAudit emits an event for each redirect.
func WithAudit(s audit.Sink) GateOption {
	return func(c *gateConfig) { c.audit = s }
}

// RequireSession lets requests with a live session through and redirects
// everyone else to signInPath with 307. A session store outage is a 500, not
// a redirect, so a Redis failure does not look like a sign-out.
func RequireSession(gate Gate, signInPath string, opts ...GateOption) func(http.Handler) http.Handler {
	cfg := gateConfig{logger: slog.Default(), audit: audit.NoOpSink{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := gate.Resolve(r.Context(), r.Header)
			if err != nil {
				if errors.Is(err, session.ErrRedisUnavailable) {
					cfg.logger.Error("session gate: resolve failed", "path", r.URL.Path, "error", err)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				cfg.metrics.Inc(metrics.SessionGateRedirect)
				cfg.audit.Emit(r.Context(), audit.Event{
					EventType: audit.EventGateRedirect,
					Outcome:   "redirect",
					Path:      r.URL.Path,
					Error:     err.Error(),
				})
				http.Redirect(w, r, signInPath, http.StatusTemporaryRedirect)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
