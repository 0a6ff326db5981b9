package authshield

import (
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authshield/emailcheck"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestDefaultConfigPresets(t *testing.T) {
	dev := DefaultConfig(ModeDevelopment)
	if dev.Protection.Timeout != 3*time.Second || !dev.Protection.FailOpen {
		t.Fatalf("development protection = %+v", dev.Protection)
	}
	if dev.Protection.RateLimitMax != 100 || dev.Protection.RateLimitInterval != time.Minute {
		t.Fatalf("development rate limit = %d per %v", dev.Protection.RateLimitMax, dev.Protection.RateLimitInterval)
	}
	if dev.CORS.FallbackOrigin != "http://localhost:3001" {
		t.Fatalf("fallback origin = %q", dev.CORS.FallbackOrigin)
	}

	prod := DefaultConfig(ModeProduction)
	if prod.Protection.Timeout != 5*time.Second || prod.Protection.FailOpen {
		t.Fatalf("production protection = %+v", prod.Protection)
	}
	if prod.Protection.RateLimitMax != 5 || prod.Protection.RateLimitInterval != 2*time.Minute {
		t.Fatalf("production rate limit = %d per %v", prod.Protection.RateLimitMax, prod.Protection.RateLimitInterval)
	}
	if !prod.Session.SecureCookie {
		t.Fatal("production cookie should be secure")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "development defaults", mode: ModeDevelopment, wantValid: true},
		{name: "production without secret", mode: ModeProduction, wantValid: false},
		{
			name: "production with secret",
			mode: ModeProduction,
			mutate: func(c *Config) {
				c.JWT.Secret = testSecret
			},
			wantValid: true,
		},
		{
			name:      "short hs256 secret",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.JWT.Secret = []byte("short") },
			wantValid: false,
		},
		{name: "unknown mode", mode: "staging", wantValid: false},
		{
			name:      "zero timeout",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Protection.Timeout = 0 },
			wantValid: false,
		},
		{
			name:      "empty base path",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Server.AuthBasePath = "" },
			wantValid: false,
		},
		{
			name:      "base path with trailing slash",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Server.AuthBasePath = "/api/auth/" },
			wantValid: false,
		},
		{
			name:      "sign-in page under auth path",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Server.SignInPath = "/api/auth/sign-in" },
			wantValid: false,
		},
		{
			name:      "zero rate limit",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Protection.RateLimitMax = 0 },
			wantValid: false,
		},
		{
			name:      "unknown email block reason",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Protection.EmailBlock = []emailcheck.Reason{"ROLE_ACCOUNT"} },
			wantValid: false,
		},
		{
			name:      "trusted proxy cidr",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Protection.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.1"} },
			wantValid: true,
		},
		{
			name:      "invalid trusted proxy",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Protection.TrustedProxies = []string{"10.0.0.0/99"} },
			wantValid: false,
		},
		{
			name:      "zero session ttl",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Session.TTL = 0 },
			wantValid: false,
		},
		{
			name:      "weak argon2",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Password.Memory = 1 },
			wantValid: false,
		},
		{
			name:      "unknown audit format",
			mode:      ModeDevelopment,
			mutate:    func(c *Config) { c.Audit.Format = "xml" },
			wantValid: false,
		},
		{
			name: "audit format ignored when disabled",
			mode: ModeDevelopment,
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.Format = "xml"
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(tt.mode)
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":            ModeDevelopment,
		"dev":         ModeDevelopment,
		"Development": ModeDevelopment,
		"prod":        ModeProduction,
		" production": ModeProduction,
	} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("test"); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestCORSPolicyFromConfig(t *testing.T) {
	cfg := DefaultConfig(ModeDevelopment)
	p := cfg.CORSPolicy()
	if got := p.Resolve("http://localhost:5173"); got != "http://localhost:5173" {
		t.Fatalf("dev localhost origin = %q", got)
	}
	if got := p.Resolve("https://evil.example"); got != "http://localhost:3001" {
		t.Fatalf("dev fallback = %q", got)
	}

	cfg = DefaultConfig(ModeProduction)
	if got := cfg.CORSPolicy().Resolve("https://evil.example"); got != "*" {
		t.Fatalf("prod without frontend = %q", got)
	}
	cfg.CORS.FrontendURL = "https://app.example.com"
	if got := cfg.CORSPolicy().Resolve("http://localhost:5173"); got != "https://app.example.com" {
		t.Fatalf("prod with frontend = %q", got)
	}
}

func TestCloneConfigIsolatesSlices(t *testing.T) {
	cfg := DefaultConfig(ModeDevelopment)
	cfg.JWT.Secret = append([]byte(nil), testSecret...)
	cfg.Protection.TrustedProxies = []string{"10.0.0.1"}

	clone := cloneConfig(cfg)
	clone.JWT.Secret[0] = 'X'
	clone.Protection.TrustedProxies[0] = "10.0.0.2"
	clone.Protection.EmailBlock[0] = "changed"

	if cfg.JWT.Secret[0] != '0' || cfg.Protection.TrustedProxies[0] != "10.0.0.1" {
		t.Fatal("clone shares backing arrays with the original")
	}
	if cfg.Protection.EmailBlock[0] == "changed" {
		t.Fatal("clone shares the email block list")
	}
}
