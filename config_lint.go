package authshield

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authshield/cors"
	"github.com/MrEthical07/authshield/jwt"
)

// LintSeverity ranks a lint warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is one finding on a configuration that passed Validate but
// looks risky for its mode.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintWarnings is the ordered result of Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	codes := make([]string, len(ws))
	for i, w := range ws {
		codes[i] = w.Code
	}
	return codes
}

// BySeverity returns warnings at or above min.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds warnings at or above min into one error, or nil.
func (ws LintWarnings) AsError(min LintSeverity) error {
	hits := ws.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message)
	}
	return fmt.Errorf("authshield config lint: %s", strings.Join(parts, "; "))
}

const (
	lintTimeoutLong    = 10 * time.Second
	lintSessionTTLLong = 30 * 24 * time.Hour
	lintRateLimitLoose = 60 // requests per minute
)

// Lint reports risky but valid settings.
func (c Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}
	prod := c.Mode == ModeProduction

	if prod && c.CORS.FrontendURL == "" {
		add("cors_wildcard_credentials", LintHigh,
			"production without FRONTEND_URL advertises origin * together with Allow-Credentials; browsers reject credentialed requests")
	} else if prod && c.CORS.FrontendURL == cors.Wildcard {
		add("cors_wildcard_credentials", LintHigh, "FRONTEND_URL is * while credentials are allowed")
	}
	if prod && c.Protection.FailOpen {
		add("fail_open_production", LintHigh, "protection failures forward requests unprotected in production")
	}
	if prod && !c.Session.SecureCookie {
		add("insecure_cookie_production", LintHigh, "session cookie is sent without the Secure attribute")
	}
	if c.Protection.Timeout > lintTimeoutLong {
		add("timeout_long", LintWarn, fmt.Sprintf("protection timeout %v holds requests for a long time", c.Protection.Timeout))
	}
	if c.Protection.RateLimitInterval > 0 {
		perMinute := float64(c.Protection.RateLimitMax) / c.Protection.RateLimitInterval.Minutes()
		if prod && perMinute > lintRateLimitLoose {
			add("rate_limit_loose", LintWarn, fmt.Sprintf("rate limit allows %.0f requests per minute", perMinute))
		}
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not recorded")
	}
	if prod && c.JWT.SigningMethod == jwt.MethodHS256 {
		add("hs256_in_production", LintInfo, "HS256 shares the verification key with every verifier; prefer ed25519")
	}
	if c.Session.TTL > lintSessionTTLLong {
		add("session_ttl_long", LintWarn, fmt.Sprintf("session TTL %v exceeds 30 days", c.Session.TTL))
	}
	return ws
}
