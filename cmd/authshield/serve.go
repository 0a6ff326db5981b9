package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authshield"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		addr      string
		mode      string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the authshield HTTP server.

The auth API is mounted at AUTH_BASE_PATH (default /api/auth), the
sign-in page at SIGN_IN_PATH and the gated layout at /. Prometheus
metrics are served at /metrics.

Examples:
  authshield serve
  authshield serve --addr=:8080 --mode=production`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				if err := os.Setenv(authshield.EnvAppEnv, mode); err != nil {
					return err
				}
			}
			cfg, err := authshield.LoadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}
			return runServe(cmd.Context(), cfg, newLogger(logFormat, cfg.Mode))
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from LISTEN_ADDR or :3000)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "development or production (default from APP_ENV)")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "text or json (default: text in development, json in production)")

	return cmd
}

func newLogger(format string, mode authshield.Mode) *slog.Logger {
	if format == "" {
		format = "text"
		if mode == authshield.ModeProduction {
			format = "json"
		}
	}
	level := slog.LevelDebug
	if mode == authshield.ModeProduction {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func runServe(ctx context.Context, cfg authshield.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := connectRedis(ctx, cfg.Redis, cfg.Mode, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	app, err := authshield.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer app.Close()

	logSecurityReport(logger, app.SecurityReport())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "mode", string(cfg.Mode), "auth_base_path", cfg.Server.AuthBasePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func logSecurityReport(logger *slog.Logger, r authshield.SecurityReport) {
	logger.Info("security posture",
		"production", r.ProductionMode,
		"fail_open", r.FailOpen,
		"protection_timeout", r.ProtectionTimeout,
		"rate_limit", fmt.Sprintf("%d/%s", r.RateLimitMax, r.RateLimitInterval),
		"cors_origin", r.CORSOrigin,
		"signing", r.SigningAlgorithm,
		"ephemeral_secret", r.EphemeralSecret,
		"secure_cookie", r.SecureCookie,
		"audit", r.AuditEnabled,
		"metrics", r.MetricsEnabled,
	)
	for _, w := range r.LintWarnings {
		level := slog.LevelInfo
		switch w.Severity {
		case authshield.LintWarn:
			level = slog.LevelWarn
		case authshield.LintHigh:
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, "config lint", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}
}
