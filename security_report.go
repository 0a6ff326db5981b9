package authshield

import (
	"time"

	"github.com/MrEthical07/authshield/emailcheck"
)

// SecurityReport summarises the protection posture an App runs with.
type SecurityReport struct {
	ProductionMode    bool
	FailOpen          bool
	ProtectionTimeout time.Duration
	RateLimitMax      int
	RateLimitInterval time.Duration
	EmailBlock        []emailcheck.Reason
	TrustedProxies    int
	CORSOrigin        string
	SigningAlgorithm  string
	EphemeralSecret   bool
	SessionTTL        time.Duration
	SecureCookie      bool
	Argon2            PasswordConfigReport
	AuditEnabled      bool
	MetricsEnabled    bool
	LintWarnings      LintWarnings
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (a *App) SecurityReport() SecurityReport {
	if a == nil {
		return SecurityReport{}
	}
	c := a.config

	origin := c.CORS.FrontendURL
	if c.Development() {
		origin = c.CORS.LocalhostPrefix + "* (fallback " + c.CORS.FallbackOrigin + ")"
	} else if origin == "" {
		origin = "*"
	}

	return SecurityReport{
		ProductionMode:    c.Mode == ModeProduction,
		FailOpen:          c.Protection.FailOpen,
		ProtectionTimeout: c.Protection.Timeout,
		RateLimitMax:      c.Protection.RateLimitMax,
		RateLimitInterval: c.Protection.RateLimitInterval,
		EmailBlock:        append([]emailcheck.Reason(nil), c.Protection.EmailBlock...),
		TrustedProxies:    len(c.Protection.TrustedProxies),
		CORSOrigin:        origin,
		SigningAlgorithm:  string(c.JWT.SigningMethod),
		EphemeralSecret:   a.ephemeralSecret,
		SessionTTL:        c.Session.TTL,
		SecureCookie:      c.Session.SecureCookie,
		Argon2: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		AuditEnabled:   c.Audit.Enabled,
		MetricsEnabled: c.Metrics.Enabled,
		LintWarnings:   c.Lint(),
	}
}
