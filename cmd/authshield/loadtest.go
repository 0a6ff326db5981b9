package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/metrics"
	"github.com/MrEthical07/authshield/password"
	"github.com/spf13/cobra"
)

type loadtestOptions struct {
	requests     int
	concurrency  int
	mode         string
	redisAddr    string
	rateLimitMax int
	timeout      time.Duration
}

func loadtestCmd() *cobra.Command {
	var opts loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive the protected endpoint in-process and report outcomes",
		Long: `Build an in-process authshield app and send a mix of protected
requests through it: valid and disposable sign-in emails, rate-limited
sign-ups and scanner sign-outs. Reports per-status counts, protection
outcome counters and latency percentiles.

MX lookups are answered locally so the run does not touch DNS.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.requests <= 0 || opts.concurrency <= 0 {
				return fmt.Errorf("requests and concurrency must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.requests, "requests", "n", 20000, "Total protected requests")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 64, "Concurrent workers")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "development", "development or production presets")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "Redis address (default: in-process miniredis)")
	cmd.Flags().IntVar(&opts.rateLimitMax, "rate-limit-max", 0, "Override the rate limit max (0 keeps the preset)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Override the protection timeout (0 keeps the preset)")

	return cmd
}

// acceptMX answers every MX lookup with one record.
type acceptMX struct{}

func (acceptMX) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx." + name + ".", Pref: 10}}, nil
}

type loadRequest struct {
	name   string
	path   string
	body   string
	header http.Header
}

func requestMix(base string) []loadRequest {
	return []loadRequest{
		{name: "sign-in/valid", path: base + "/sign-in/email", body: `{"email":"load@example.com","password":"not-the-password"}`},
		{name: "sign-in/disposable", path: base + "/sign-in/email", body: `{"email":"load@mailinator.com","password":"x"}`},
		{name: "sign-up/rate-limit", path: base + "/sign-up/email", body: `{}`},
		{name: "sign-out/scanner", path: base + "/sign-out", header: http.Header{"User-Agent": {"sqlmap/1.8"}}},
	}
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mode, err := authshield.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	cfg := authshield.DefaultConfig(mode)
	cfg.Redis.Addr = opts.redisAddr
	cfg.Audit.Enabled = false
	cfg.Metrics.PrometheusPath = ""
	cfg.JWT.Secret = []byte("loadtest-secret-loadtest-secret-0")
	// Sign-ins for unknown users still verify a dummy hash; a light cost
	// keeps the run about the protection layer.
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32, MinLength: 8, MaxLength: 128}
	if opts.rateLimitMax > 0 {
		cfg.Protection.RateLimitMax = opts.rateLimitMax
	}
	if opts.timeout > 0 {
		cfg.Protection.Timeout = opts.timeout
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rdb, closeRedis, err := connectRedis(ctx, cfg.Redis, authshield.ModeDevelopment, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	app, err := authshield.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithMXResolver(acceptMX{}).
		Build()
	if err != nil {
		return err
	}
	defer app.Close()

	mix := requestMix(cfg.Server.AuthBasePath)
	handler := app.Handler()

	var (
		wg        sync.WaitGroup
		cursor    int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, opts.requests)
		statuses  = map[int]int{}
	)

	fmt.Fprintf(out, "sending %d requests with %d workers (%s presets)\n", opts.requests, opts.concurrency, mode)
	start := time.Now()
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= opts.requests || ctx.Err() != nil {
					return
				}
				lr := mix[i%len(mix)]
				req := httptest.NewRequest(http.MethodPost, lr.path, strings.NewReader(lr.body))
				req.Header.Set("Content-Type", "application/json")
				for k, v := range lr.header {
					req.Header[k] = v
				}
				rec := httptest.NewRecorder()

				t0 := time.Now()
				handler.ServeHTTP(rec, req)
				d := time.Since(t0)

				mu.Lock()
				latencies = append(latencies, d)
				statuses[rec.Code]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stats := computeStats(time.Since(start), latencies)
	fmt.Fprintln(out, "---- results ----")
	printStats(out, "protected", stats)
	printStatuses(out, statuses)
	printOutcomes(out, app.MetricsSnapshot())
	return nil
}

type phaseStats struct {
	total   time.Duration
	ops     int
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	opsPerS float64
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func printStatuses(out io.Writer, statuses map[int]int) {
	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "status %d: %d\n", code, statuses[code])
	}
}

var outcomeCounters = []struct {
	name string
	id   metrics.ID
}{
	{"allowed", metrics.ProtectionAllowed},
	{"denied_email", metrics.ProtectionDeniedEmail},
	{"denied_rate_limit", metrics.ProtectionDeniedRateLimit},
	{"denied_shield", metrics.ProtectionDeniedShield},
	{"timeout", metrics.ProtectionTimeout},
	{"error", metrics.ProtectionError},
	{"fail_open", metrics.ProtectionFailOpen},
}

func printOutcomes(out io.Writer, snap metrics.Snapshot) {
	for _, c := range outcomeCounters {
		fmt.Fprintf(out, "outcome %s: %d\n", c.name, snap.Counters[c.id])
	}
}
