package authshield

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"

	"github.com/MrEthical07/authshield/audit"
	"github.com/MrEthical07/authshield/emailcheck"
	"github.com/MrEthical07/authshield/protect"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Builder collects collaborators for an App. It is single-use: Build
// consumes it.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger

	mxResolver emailcheck.MXResolver
	service    protect.Service
	auditSink  audit.Sink
	tracer     trace.Tracer
	meter      metric.Meter

	built bool
}

// New returns a Builder holding the development presets.
func New() *Builder {
	return &Builder{config: DefaultConfig(ModeDevelopment)}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client shared by the rate limiter, the session store and
// the user store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMXResolver replaces net.DefaultResolver for email MX lookups.
func (b *Builder) WithMXResolver(r emailcheck.MXResolver) *Builder {
	b.mxResolver = r
	return b
}

// WithService replaces the in-process decision service, e.g. with a client
// for a remote protection provider.
func (b *Builder) WithService(s protect.Service) *Builder {
	b.service = s
	return b
}

// WithAuditSink overrides the sink selected by Config.Audit.Format.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithTracer sets the tracer used for protection spans. The global
// provider's tracer is used otherwise.
func (b *Builder) WithTracer(t trace.Tracer) *Builder {
	b.tracer = t
	return b
}

// WithMeter publishes the metrics snapshot through OpenTelemetry
// observable instruments on meter.
func (b *Builder) WithMeter(m metric.Meter) *Builder {
	b.meter = m
	return b
}

// Build validates the configuration and wires the App.
//
// In development an empty JWT secret is replaced with a random one; tokens
// issued with it do not survive a restart.
func (b *Builder) Build() (*App, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	if b.redis == nil {
		return nil, ErrRedisRequired
	}

	cfg := cloneConfig(b.config)
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	ephemeral := false
	if len(cfg.JWT.Secret) == 0 && len(cfg.JWT.PublicKey) == 0 && cfg.Mode == ModeDevelopment {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.JWT.Secret = secret
		ephemeral = true
		logger.Warn("JWT secret not configured, using an ephemeral development secret")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		switch cfg.Audit.Format {
		case "json":
			sink = audit.NewJSONWriterSink(os.Stdout)
		default:
			sink = audit.SlogSink{Logger: logger}
		}
	}

	app, err := newApp(appDeps{
		config:          cfg,
		redis:           b.redis,
		logger:          logger,
		mxResolver:      b.mxResolver,
		service:         b.service,
		auditSink:       sink,
		tracer:          b.tracer,
		meter:           b.meter,
		ephemeralSecret: ephemeral,
	})
	if err != nil {
		return nil, err
	}

	b.built = true
	return app, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = append([]byte(nil), cfg.JWT.Secret...)
	out.JWT.PublicKey = append([]byte(nil), cfg.JWT.PublicKey...)
	out.Protection.EmailBlock = append(out.Protection.EmailBlock[:0:0], cfg.Protection.EmailBlock...)
	out.Protection.ExtraScannerAgents = append([]string(nil), cfg.Protection.ExtraScannerAgents...)
	out.Protection.TrustedProxies = append([]string(nil), cfg.Protection.TrustedProxies...)
	return out
}
