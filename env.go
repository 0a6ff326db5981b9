package authshield

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadConfig.
const (
	EnvAppEnv            = "APP_ENV"
	EnvFrontendURL       = "FRONTEND_URL"
	EnvListenAddr        = "LISTEN_ADDR"
	EnvAuthBasePath      = "AUTH_BASE_PATH"
	EnvSignInPath        = "SIGN_IN_PATH"
	EnvTrustedProxies    = "TRUSTED_PROXIES"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvRedisDB           = "REDIS_DB"
	EnvJWTSecret         = "JWT_SECRET"
	EnvSessionTTL        = "SESSION_TTL"
	EnvProtectionTimeout = "PROTECTION_TIMEOUT"
	EnvRateLimitMax      = "RATE_LIMIT_MAX"
	EnvRateLimitInterval = "RATE_LIMIT_INTERVAL"
)

// LoadConfig loads .env.local and .env (missing files are fine; existing
// variables win) and builds a Config from the environment on top of the
// presets for APP_ENV. The result is not validated.
func LoadConfig() (Config, error) {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return configFromEnv(os.LookupEnv)
}

func configFromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	mode, err := ParseMode(get(EnvAppEnv))
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig(mode)

	if v := get(EnvFrontendURL); v != "" {
		cfg.CORS.FrontendURL = v
	}
	if v := get(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := get(EnvAuthBasePath); v != "" {
		cfg.Server.AuthBasePath = v
	}
	if v := get(EnvSignInPath); v != "" {
		cfg.Server.SignInPath = v
	}
	if v := get(EnvTrustedProxies); v != "" {
		cfg.Protection.TrustedProxies = splitList(v)
	}
	if v := get(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}
	if v := get(EnvRedisPassword); v != "" {
		cfg.Redis.Password = v
	}
	if v := get(EnvRedisDB); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil || db < 0 {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvRedisDB, v)
		}
		cfg.Redis.DB = db
	}
	if v := get(EnvJWTSecret); v != "" {
		cfg.JWT.Secret = []byte(v)
	}
	if err := envDuration(get, EnvSessionTTL, &cfg.Session.TTL); err != nil {
		return Config{}, err
	}
	if err := envDuration(get, EnvProtectionTimeout, &cfg.Protection.Timeout); err != nil {
		return Config{}, err
	}
	if err := envDuration(get, EnvRateLimitInterval, &cfg.Protection.RateLimitInterval); err != nil {
		return Config{}, err
	}
	if v := get(EnvRateLimitMax); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvRateLimitMax, v)
		}
		cfg.Protection.RateLimitMax = n
	}
	return cfg, nil
}

func envDuration(get func(string) string, key string, dst *time.Duration) error {
	v := get(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
