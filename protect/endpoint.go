package protect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authshield/audit"
	"github.com/MrEthical07/authshield/cors"
	"github.com/MrEthical07/authshield/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxBodyBytes bounds how much of a body is buffered for classification.
	DefaultMaxBodyBytes int64 = 1 << 20

	tracerName = "github.com/MrEthical07/authshield/protect"
)

var errNilOption = errors.New("protect: Next, Service and Classifier are required")

// Options configures an Endpoint.
type Options struct {
	// Next is the authentication handler requests are forwarded to.
	Next       http.Handler
	Service    Service
	Classifier *Classifier
	CORS       cors.Policy
	// Timeout bounds the classify+decide task.
	Timeout time.Duration
	// FailOpen forwards requests unprotected on timeout or service error.
	// When false those requests get a 500.
	FailOpen     bool
	MaxBodyBytes int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Audit   audit.Sink
	Tracer  trace.Tracer
}

// Endpoint serves the authentication route: OPTIONS preflight, GET forwarded,
// POST protected. Other methods get 405.
type Endpoint struct {
	next       http.Handler
	service    Service
	classifier *Classifier
	cors       cors.Policy
	timeout    time.Duration
	failOpen   bool
	maxBody    int64
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      audit.Sink
	tracer     trace.Tracer
}

// NewEndpoint validates opts and builds an Endpoint.
func NewEndpoint(opts Options) (*Endpoint, error) {
	if opts.Next == nil || opts.Service == nil || opts.Classifier == nil {
		return nil, errNilOption
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("protect: timeout must be positive, got %v", opts.Timeout)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Audit == nil {
		opts.Audit = audit.NoOpSink{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	return &Endpoint{
		next:       opts.Next,
		service:    opts.Service,
		classifier: opts.Classifier,
		cors:       opts.CORS,
		timeout:    opts.Timeout,
		failOpen:   opts.FailOpen,
		maxBody:    opts.MaxBodyBytes,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		audit:      opts.Audit,
		tracer:     opts.Tracer,
	}, nil
}

// ServeHTTP implements http.Handler.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := e.cors.ResolveRequest(r)

	switch r.Method {
	case http.MethodOptions:
		e.metrics.Inc(metrics.Preflight)
		writeJSON(w, http.StatusOK, origin, struct{}{})
	case http.MethodGet, http.MethodHead:
		e.forward(w, r, origin)
	case http.MethodPost:
		e.protect(w, r, origin)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, origin, "Method not allowed")
	}
}

type taskResult struct {
	rule     Rule
	decision Decision
	err      error
}

func (e *Endpoint) protect(w http.ResponseWriter, r *http.Request, origin string) {
	start := time.Now()

	body, rest, readErr := readBody(r, e.maxBody)

	var (
		res     taskResult
		outcome Outcome
	)
	if readErr != nil {
		res.err = fmt.Errorf("%w: read body: %v", ErrProtectionService, readErr)
		outcome = OutcomeError
	} else {
		res, outcome = e.decide(r, body)
	}

	e.metrics.Observe(metrics.DecisionLatency, time.Since(start))
	e.metrics.Inc(outcome.metric())
	e.record(r, res, outcome)

	switch outcome {
	case OutcomeAllowed:
		e.forward(w, withBody(r, body, rest), origin)

	case OutcomeDeniedEmail, OutcomeDeniedRateLimit, OutcomeDeniedShield:
		status, message, _ := DenialResponse(res.decision.Reason())
		if after := res.decision.RetryAfter(); after > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int((after+time.Second-1)/time.Second)))
		}
		writeError(w, status, origin, message)

	default:
		if e.failOpen {
			e.logger.Warn("protection check failed, allowing request in fail-open mode",
				"path", r.URL.Path,
				"rule", res.rule.Kind.String(),
				"outcome", outcome.String(),
				"error", res.err,
			)
			e.metrics.Inc(metrics.ProtectionFailOpen)
			e.forward(w, withBody(r, body, rest), origin)
			return
		}
		e.logger.Error("protection check failed",
			"path", r.URL.Path,
			"rule", res.rule.Kind.String(),
			"outcome", outcome.String(),
			"error", res.err,
		)
		writeError(w, http.StatusInternalServerError, origin, "Security check failed")
	}
}

// decide races the classify+decide task against the timeout. The task runs
// on its own clone of r and its own copy of the body; when the timeout wins,
// the task's context is cancelled and its eventual result dropped.
func (e *Endpoint) decide(r *http.Request, body []byte) (taskResult, Outcome) {
	ctx, span := e.tracer.Start(r.Context(), "authshield.protect",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("http.route", r.URL.Path)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	task := r.Clone(ctx)
	task.Body = io.NopCloser(bytes.NewReader(body))
	task.ContentLength = int64(len(body))

	done := make(chan taskResult, 1)
	classified := make(chan Rule, 1)
	go func() {
		var out taskResult
		defer func() {
			if p := recover(); p != nil {
				out.err = fmt.Errorf("%w: panic: %v", ErrProtectionService, p)
			}
			done <- out
		}()
		out.rule = e.classifier.Classify(ctx, task, body)
		classified <- out.rule
		out.decision, out.err = e.service.Decide(ctx, task, out.rule)
	}()

	var (
		res     taskResult
		outcome Outcome
	)
	select {
	case res = <-done:
		switch {
		case res.err == nil:
			outcome = outcomeOf(res.decision)
		case errors.Is(res.err, context.DeadlineExceeded):
			outcome = OutcomeTimeout
			res.err = fmt.Errorf("%w after %v: %v", ErrProtectionTimeout, e.timeout, res.err)
		default:
			outcome = OutcomeError
		}
	case <-ctx.Done():
		// the rule is known when classification finished before the deadline
		select {
		case res.rule = <-classified:
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeTimeout
			res.err = fmt.Errorf("%w after %v", ErrProtectionTimeout, e.timeout)
		} else {
			outcome = OutcomeError
			res.err = fmt.Errorf("%w: %v", ErrProtectionService, ctx.Err())
		}
	}

	span.SetAttributes(
		attribute.String("authshield.rule", res.rule.Kind.String()),
		attribute.String("authshield.outcome", outcome.String()),
	)
	if res.decision.Detail() != "" {
		span.SetAttributes(attribute.String("authshield.detail", res.decision.Detail()))
	}
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, outcome.String())
	}

	if outcome == OutcomeAllowed && res.decision.IsDenied() {
		e.logger.Warn("denial without a known reason, forwarding request", "path", r.URL.Path, "rule", res.rule.Kind.String())
	}
	return res, outcome
}

// forward hands r to next. A handler that returns without writing still gets
// an explicit 200 so the implicit response carries the CORS headers.
func (e *Endpoint) forward(w http.ResponseWriter, r *http.Request, origin string) {
	cw := &corsWriter{ResponseWriter: w, origin: origin}
	e.next.ServeHTTP(cw, r)
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
}

func (e *Endpoint) record(r *http.Request, res taskResult, outcome Outcome) {
	event := audit.Event{
		EventType: audit.EventProtection,
		Outcome:   outcome.String(),
		Path:      r.URL.Path,
		Success:   outcome == OutcomeAllowed,
		Metadata:  map[string]string{"rule": res.rule.Kind.String()},
	}
	if e.classifier.ClientIP != nil {
		event.IP = e.classifier.ClientIP(r)
	}
	if res.rule.Kind == RuleRateLimit {
		event.Metadata["fingerprint"] = res.rule.Fingerprint
	}
	if d := res.decision.Detail(); d != "" {
		event.Metadata["detail"] = d
	}
	if res.err != nil {
		event.Error = res.err.Error()
	}
	e.audit.Emit(r.Context(), event)
}

// readBody buffers up to limit bytes. When the body is longer, rest holds the
// unread remainder so forwarding still sees the full stream.
func readBody(r *http.Request, limit int64) (buf []byte, rest io.Reader, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil, nil
	}
	buf, err = io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return buf, r.Body, err
	}
	if int64(len(buf)) == limit {
		return buf, r.Body, nil
	}
	return buf, nil, nil
}

func withBody(r *http.Request, buf []byte, rest io.Reader) *http.Request {
	if r.Body == nil || r.Body == http.NoBody {
		return r
	}
	if rest == nil {
		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
		return r
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), rest), r.Body}
	return r
}

// corsWriter re-applies the CORS headers right before the status line, so a
// forwarded handler cannot drop or change them.
type corsWriter struct {
	http.ResponseWriter
	origin      string
	wroteHeader bool
}

func (c *corsWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.wroteHeader = true
		cors.Apply(c.ResponseWriter.Header(), c.origin)
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *corsWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	return c.ResponseWriter.Write(p)
}

func (c *corsWriter) Flush() {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *corsWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

func writeError(w http.ResponseWriter, status int, origin, message string) {
	writeJSON(w, status, origin, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, origin string, v any) {
	cors.Apply(w.Header(), origin)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
