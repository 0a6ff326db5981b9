package authshield

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authshield/clientip"
	"github.com/MrEthical07/authshield/cors"
	"github.com/MrEthical07/authshield/emailcheck"
	"github.com/MrEthical07/authshield/jwt"
	"github.com/MrEthical07/authshield/password"
)

// Mode selects the development or production presets and failure policy.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode accepts the APP_ENV spellings.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev", "":
		return ModeDevelopment, nil
	case "production", "prod":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

// Config is the complete service configuration.
type Config struct {
	Mode       Mode
	Server     ServerConfig
	CORS       CORSConfig
	Protection ProtectionConfig
	Redis      RedisConfig
	Session    SessionConfig
	JWT        JWTConfig
	Password   password.Config
	Audit      AuditConfig
	Metrics    MetricsConfig
}

// ServerConfig controls the listener and route layout.
type ServerConfig struct {
	ListenAddr string
	// AuthBasePath is where the protected auth route is mounted.
	AuthBasePath string
	// SignInPath is the sign-in page the session gate redirects to.
	SignInPath        string
	Title             string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// CORSConfig sets the origins advertised on the auth route.
type CORSConfig struct {
	// FrontendURL is the production origin. Empty means "*".
	FrontendURL     string
	FallbackOrigin  string
	LocalhostPrefix string
}

// ProtectionConfig tunes the protected endpoint and its rules.
type ProtectionConfig struct {
	Timeout time.Duration
	// FailOpen forwards requests when the decision times out or errors.
	FailOpen           bool
	MaxBodyBytes       int64
	RateLimitMax       int
	RateLimitInterval  time.Duration
	EmailBlock         []emailcheck.Reason
	ExtraScannerAgents []string
	// TrustedProxies lists proxy addresses or CIDRs whose forwarding headers are honoured.
	TrustedProxies []string
}

// RedisConfig locates the Redis instance backing sessions and rate limits.
type RedisConfig struct {
	// Addr is host:port. cmd/authshield starts an in-process miniredis when
	// it is empty in development.
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// SessionConfig controls session lifetime and the session cookie.
type SessionConfig struct {
	TTL          time.Duration
	CookieName   string
	SecureCookie bool
}

// JWTConfig controls signing of session access tokens.
type JWTConfig struct {
	SigningMethod jwt.SigningMethod
	// Secret is the HS256 key, or the Ed25519 private key for MethodEd25519.
	Secret    []byte
	PublicKey []byte
	Issuer    string
	Audience  string
	Leeway    time.Duration
	KeyID     string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Format is "slog" (events logged through the service logger) or "json"
	// (one object per line on stdout).
	Format string
}

// MetricsConfig enables in-process counters and the Prometheus handler.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
	// PrometheusPath serves the metrics handler; empty disables it.
	PrometheusPath string
}

// DefaultConfig returns the presets for mode.
func DefaultConfig(mode Mode) Config {
	cfg := Config{
		Mode: mode,
		Server: ServerConfig{
			ListenAddr:        ":3000",
			AuthBasePath:      "/api/auth",
			SignInPath:        "/sign-in",
			Title:             "authshield",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		CORS: CORSConfig{
			FallbackOrigin:  cors.DefaultFallbackOrigin,
			LocalhostPrefix: cors.DefaultLocalhostPrefix,
		},
		Protection: ProtectionConfig{
			Timeout:           3 * time.Second,
			FailOpen:          true,
			MaxBodyBytes:      1 << 20,
			RateLimitMax:      100,
			RateLimitInterval: time.Minute,
			EmailBlock:        []emailcheck.Reason{emailcheck.ReasonDisposable, emailcheck.ReasonInvalid, emailcheck.ReasonNoMXRecords},
		},
		Redis: RedisConfig{
			KeyPrefix: "authshield",
		},
		Session: SessionConfig{
			TTL:        7 * 24 * time.Hour,
			CookieName: "authshield.session_token",
		},
		JWT: JWTConfig{
			SigningMethod: jwt.MethodHS256,
			Issuer:        "authshield",
		},
		Password: password.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
			Format:     "slog",
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
			PrometheusPath:          "/metrics",
		},
	}

	if mode == ModeProduction {
		cfg.Protection.Timeout = 5 * time.Second
		cfg.Protection.FailOpen = false
		cfg.Protection.RateLimitMax = 5
		cfg.Protection.RateLimitInterval = 2 * time.Minute
		cfg.Session.SecureCookie = true
	}
	return cfg
}

// Development reports whether c runs with development presets.
func (c Config) Development() bool {
	return c.Mode == ModeDevelopment
}

// CORSPolicy converts the CORS group into a cors.Policy.
func (c Config) CORSPolicy() cors.Policy {
	return cors.Policy{
		Development:     c.Development(),
		FrontendURL:     c.CORS.FrontendURL,
		FallbackOrigin:  c.CORS.FallbackOrigin,
		LocalhostPrefix: c.CORS.LocalhostPrefix,
	}
}

// Validate rejects configurations Build cannot run with.
func (c Config) Validate() error {
	if c.Mode != ModeDevelopment && c.Mode != ModeProduction {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}

	if !validPath(c.Server.AuthBasePath) || c.Server.AuthBasePath == "/" {
		return fmt.Errorf("%w: auth base path %q must start with / and not end with /", ErrInvalidConfig, c.Server.AuthBasePath)
	}
	if !strings.HasPrefix(c.Server.SignInPath, "/") {
		return fmt.Errorf("%w: sign-in path %q must start with /", ErrInvalidConfig, c.Server.SignInPath)
	}
	if strings.HasPrefix(c.Server.SignInPath, c.Server.AuthBasePath+"/") {
		return fmt.Errorf("%w: sign-in page must not live under the auth base path", ErrInvalidConfig)
	}

	p := c.Protection
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: protection timeout must be positive", ErrInvalidConfig)
	}
	if p.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: max body bytes must not be negative", ErrInvalidConfig)
	}
	if p.RateLimitMax <= 0 || p.RateLimitInterval <= 0 {
		return fmt.Errorf("%w: rate limit needs a positive max and interval", ErrInvalidConfig)
	}
	if _, err := emailcheck.New(p.EmailBlock); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := clientip.New(p.TrustedProxies); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: session TTL must be positive", ErrInvalidConfig)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("%w: session cookie name is required", ErrInvalidConfig)
	}

	if len(c.JWT.Secret) == 0 && len(c.JWT.PublicKey) == 0 && c.Mode == ModeProduction {
		return fmt.Errorf("%w: production requires a JWT secret", ErrInvalidConfig)
	}
	if len(c.JWT.Secret) > 0 || len(c.JWT.PublicKey) > 0 {
		if _, err := jwt.NewManager(c.jwtManagerConfig(c.JWT.Secret)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if _, err := password.New(c.Password); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return fmt.Errorf("%w: audit buffer size must be positive", ErrInvalidConfig)
		}
		if c.Audit.Format != "slog" && c.Audit.Format != "json" {
			return fmt.Errorf("%w: audit format %q must be slog or json", ErrInvalidConfig, c.Audit.Format)
		}
	}
	if c.Metrics.PrometheusPath != "" && !validPath(c.Metrics.PrometheusPath) {
		return fmt.Errorf("%w: metrics path %q must start with /", ErrInvalidConfig, c.Metrics.PrometheusPath)
	}
	return nil
}

func (c Config) jwtManagerConfig(secret []byte) jwt.Config {
	return jwt.Config{
		AccessTTL:     c.Session.TTL,
		SigningMethod: c.JWT.SigningMethod,
		PrivateKey:    secret,
		PublicKey:     c.JWT.PublicKey,
		Issuer:        c.JWT.Issuer,
		Audience:      c.JWT.Audience,
		Leeway:        c.JWT.Leeway,
		KeyID:         c.JWT.KeyID,
	}
}

func validPath(p string) bool {
	return strings.HasPrefix(p, "/") && (len(p) == 1 || !strings.HasSuffix(p, "/"))
}
