package prometheus

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authshield/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot metrics.Snapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() metrics.Snapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64              { return f.dropped }

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(fakeSource{
		snapshot: metrics.Snapshot{
			Counters: map[metrics.ID]uint64{
				metrics.ProtectionDeniedRateLimit: 4,
				metrics.ProtectionAllowed:         9,
			},
		},
		dropped: 2,
	})

	expected := `
# HELP authshield_protection_denied_rate_limit_total Requests denied by the sliding-window rate limit.
# TYPE authshield_protection_denied_rate_limit_total counter
authshield_protection_denied_rate_limit_total 4
# HELP authshield_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE authshield_audit_dropped_total counter
authshield_audit_dropped_total 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"authshield_protection_denied_rate_limit_total",
		"authshield_audit_dropped_total",
	)
	if err != nil {
		t.Fatalf("CollectAndCompare: %v", err)
	}
}

func TestHandlerServesHistogram(t *testing.T) {
	m := metrics.New(metrics.Config{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(metrics.DecisionLatency, 3*time.Millisecond)
	m.Observe(metrics.DecisionLatency, 200*time.Millisecond)
	m.Observe(metrics.DecisionLatency, 10*time.Second)
	m.Inc(metrics.ProtectionTimeout)

	h, err := Handler(fakeSource{snapshot: m.Snapshot()})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`authshield_protection_decision_seconds_bucket{le="0.005"} 1`,
		`authshield_protection_decision_seconds_bucket{le="0.25"} 2`,
		`authshield_protection_decision_seconds_bucket{le="+Inf"} 3`,
		`authshield_protection_decision_seconds_count 3`,
		`authshield_protection_timeout_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCollectorSkipsDisabledHistogram(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: metrics.New(metrics.Config{}).Snapshot()})
	if n := testutil.CollectAndCount(c, "authshield_protection_decision_seconds"); n != 0 {
		t.Fatalf("expected no histogram samples, got %d", n)
	}
}
