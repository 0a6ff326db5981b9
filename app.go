package authshield

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/authshield/audit"
	"github.com/MrEthical07/authshield/authapi"
	"github.com/MrEthical07/authshield/clientip"
	"github.com/MrEthical07/authshield/emailcheck"
	"github.com/MrEthical07/authshield/internal/rate"
	"github.com/MrEthical07/authshield/jwt"
	"github.com/MrEthical07/authshield/metrics"
	otelexport "github.com/MrEthical07/authshield/metrics/export/otel"
	promexport "github.com/MrEthical07/authshield/metrics/export/prometheus"
	"github.com/MrEthical07/authshield/middleware"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/protect"
	"github.com/MrEthical07/authshield/session"
	"github.com/MrEthical07/authshield/shield"
	"github.com/MrEthical07/authshield/ui"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// App is a wired authshield service. Handler is safe for concurrent use;
// Close releases background workers.
type App struct {
	config          Config
	logger          *slog.Logger
	metrics         *metrics.Metrics
	dispatcher      *audit.Dispatcher
	sessions        *session.Store
	endpoint        *protect.Endpoint
	auth            *authapi.Handler
	otelExporter    *otelexport.Exporter
	handler         http.Handler
	ephemeralSecret bool

	closeOnce sync.Once
}

type appDeps struct {
	config          Config
	redis           redis.UniversalClient
	logger          *slog.Logger
	mxResolver      emailcheck.MXResolver
	service         protect.Service
	auditSink       audit.Sink
	tracer          trace.Tracer
	meter           metric.Meter
	ephemeralSecret bool
}

func newApp(d appDeps) (app *App, err error) {
	cfg := d.config
	app = &App{
		config:          cfg,
		logger:          d.logger,
		metrics:         metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled, EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms}),
		ephemeralSecret: d.ephemeralSecret,
	}

	built := app
	defer func() {
		if err != nil {
			built.Close()
		}
	}()

	var sink audit.Sink = audit.NoOpSink{}
	if cfg.Audit.Enabled {
		app.dispatcher = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, d.auditSink)
		sink = app.dispatcher
	}

	ips, err := clientip.New(cfg.Protection.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	tokens, err := jwt.NewManager(cfg.jwtManagerConfig(cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	app.sessions = session.NewStore(d.redis, cfg.Redis.KeyPrefix)

	app.auth, err = authapi.New(authapi.Config{
		Users:        authapi.NewUserStore(d.redis, cfg.Redis.KeyPrefix),
		Sessions:     app.sessions,
		Tokens:       tokens,
		Passwords:    hasher,
		CookieName:   cfg.Session.CookieName,
		SecureCookie: cfg.Session.SecureCookie,
		Logger:       d.logger,
		Metrics:      app.metrics,
		Audit:        sink,
		ClientIP:     ips.ClientIP,
	})
	if err != nil {
		return nil, err
	}

	service := d.service
	if service == nil {
		service, err = newLocalService(cfg, d.redis, d.mxResolver)
		if err != nil {
			return nil, err
		}
	}

	base := cfg.Server.AuthBasePath
	app.endpoint, err = protect.NewEndpoint(protect.Options{
		Next:    app.auth,
		Service: service,
		Classifier: &protect.Classifier{
			SignInPath:  base + "/sign-in",
			SignOutPath: base + "/sign-out",
			Identity:    app.auth.Resolver(),
			ClientIP:    ips.ClientIP,
		},
		CORS:         cfg.CORSPolicy(),
		Timeout:      cfg.Protection.Timeout,
		FailOpen:     cfg.Protection.FailOpen,
		MaxBodyBytes: cfg.Protection.MaxBodyBytes,
		Logger:       d.logger,
		Metrics:      app.metrics,
		Audit:        sink,
		Tracer:       d.tracer,
	})
	if err != nil {
		return nil, err
	}

	if d.meter != nil {
		app.otelExporter, err = otelexport.NewExporter(d.meter, app)
		if err != nil {
			return nil, fmt.Errorf("otel exporter: %w", err)
		}
	}

	pages, err := ui.New(cfg.Server.Title, d.logger)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	app.handler, err = app.routes(pages, sink)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newLocalService(cfg Config, rdb redis.UniversalClient, mx emailcheck.MXResolver) (*protect.Local, error) {
	var opts []emailcheck.Option
	if mx != nil {
		opts = append(opts, emailcheck.WithResolver(mx))
	}
	email, err := emailcheck.New(cfg.Protection.EmailBlock, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	limiter, err := rate.New(rdb, rate.Config{
		Prefix:   cfg.Redis.KeyPrefix + ":rl",
		Interval: cfg.Protection.RateLimitInterval,
		Max:      cfg.Protection.RateLimitMax,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &protect.Local{
		Email:   email,
		Limiter: limiter,
		Shield:  shield.New(cfg.Protection.ExtraScannerAgents...),
	}, nil
}

func (a *App) routes(pages *ui.Renderer, sink audit.Sink) (http.Handler, error) {
	cfg := a.config
	base := cfg.Server.AuthBasePath
	matcher := middleware.DefaultMatcher()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Scope(matcher, middleware.Passthrough()))

	r.Mount(base, a.endpoint)

	r.Get(cfg.Server.SignInPath, pages.SignIn(base+"/sign-in/email").ServeHTTP)

	gate := middleware.RequireSession(a.auth.Resolver(), cfg.Server.SignInPath,
		middleware.WithLogger(a.logger),
		middleware.WithMetrics(a.metrics),
		middleware.WithAudit(sink),
	)
	r.With(middleware.Scope(matcher, gate)).Get("/", pages.Layout(base+"/sign-out").ServeHTTP)

	if cfg.Metrics.Enabled && cfg.Metrics.PrometheusPath != "" {
		h, err := promexport.Handler(a)
		if err != nil {
			return nil, fmt.Errorf("prometheus handler: %w", err)
		}
		r.Handle(cfg.Metrics.PrometheusPath, h)
	}
	return r, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Config returns the validated configuration the App runs with.
func (a *App) Config() Config {
	return cloneConfig(a.config)
}

// MetricsSnapshot implements the exporter Source interfaces.
func (a *App) MetricsSnapshot() metrics.Snapshot {
	return a.metrics.Snapshot()
}

// AuditDropped reports audit events discarded because the buffer was full.
func (a *App) AuditDropped() uint64 {
	return a.dispatcher.Dropped()
}

// Ping checks the Redis connection and returns its round-trip time.
func (a *App) Ping(ctx context.Context) (time.Duration, error) {
	return a.sessions.Ping(ctx)
}

// Close unregisters the OTel callback and flushes pending audit events.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.otelExporter != nil {
			if err := a.otelExporter.Close(); err != nil {
				a.logger.Warn("close otel exporter", "error", err)
			}
		}
		a.dispatcher.Close()
	})
}
