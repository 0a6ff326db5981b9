package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledRecorderIsInert(t *testing.T) {
	m := New(Config{})
	m.Inc(ProtectionAllowed)
	m.Observe(DecisionLatency, time.Millisecond)

	s := m.Snapshot()
	if len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", s)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(ProtectionAllowed)
	if nilMetrics.Value(ProtectionAllowed) != 0 {
		t.Fatal("nil recorder should read zero")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(ProtectionDeniedRateLimit)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(ProtectionDeniedRateLimit); got != 16000 {
		t.Fatalf("counter = %d, want 16000", got)
	}
	if got := m.Snapshot().Counters[ProtectionDeniedRateLimit]; got != 16000 {
		t.Fatalf("snapshot counter = %d", got)
	}
}

func TestLatencyBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(DecisionLatency, 5*time.Millisecond)
	m.Observe(DecisionLatency, 3*time.Second)
	m.Observe(DecisionLatency, time.Minute)
	m.Observe(ProtectionAllowed, time.Second)

	s := m.Snapshot()
	buckets := s.Histograms[DecisionLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count = %d", len(buckets))
	}
	if buckets[0] != 1 {
		t.Fatalf("5ms should land in the first bucket, got %v", buckets)
	}
	if buckets[9] != 1 {
		t.Fatalf("3s should land in the 5s bucket, got %v", buckets)
	}
	if buckets[histBucketCount-1] != 1 {
		t.Fatalf("1m should land in +Inf, got %v", buckets)
	}
	if s.HistogramSum[DecisionLatency] != 5*time.Millisecond+3*time.Second+time.Minute {
		t.Fatalf("unexpected sum %v", s.HistogramSum[DecisionLatency])
	}
}
