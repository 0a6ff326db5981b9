// Package authshield assembles a protected authentication service: an auth
// route guarded by email validation, sliding-window rate limiting and request
// shielding, session-gated pages, and the telemetry around them.
//
// # Request flow
//
// Every request to the auth base path goes through protect.Endpoint. OPTIONS
// answers the CORS preflight, GET is forwarded, POST is classified into one
// rule, evaluated under a deadline, and either rejected with a JSON error or
// forwarded to authapi.Handler. All responses carry the same CORS headers.
//
// Pages outside the excluded prefixes sit behind middleware.RequireSession,
// which redirects visitors without a live session to the sign-in page.
//
// # Configuration
//
// [DefaultConfig] returns mode presets. [LoadConfig] overlays environment
// variables (optionally from .env.local and .env). Components never read the
// environment themselves.
//
// # Construction
//
//	app, err := authshield.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithLogger(logger).
//		Build()
//	if err != nil { ... }
//	defer app.Close()
//	http.ListenAndServe(cfg.Server.ListenAddr, app.Handler())
package authshield
