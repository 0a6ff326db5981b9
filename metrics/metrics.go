package metrics

import (
	"sync/atomic"
	"time"
)

// ID identifies a counter or histogram.
type ID uint16

const (
	// ProtectionAllowed counts requests forwarded after an Allow decision.
	ProtectionAllowed ID = iota
	ProtectionDeniedEmail
	ProtectionDeniedRateLimit
	ProtectionDeniedShield
	ProtectionTimeout
	ProtectionError
	// ProtectionFailOpen counts timeouts and errors forwarded unprotected.
	ProtectionFailOpen
	Preflight
	SessionGateRedirect
	SignInSuccess
	SignInFailure
	SignUpSuccess
	SignUpFailure
	SignOut
	// DecisionLatency is the only histogram.
	DecisionLatency
	idCount
)

// HistogramBuckets are the upper bounds, in seconds, of the latency buckets.
// The last bucket is +Inf.
var HistogramBuckets = [histBucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

const (
	histBucketCount = 11
	cacheLineSize   = 64
)

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [histBucketCount]uint64
	sumNs   uint64
}

// Config toggles recording.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Metrics records counters and latencies.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [idCount]paddedCounter
	latency       histogram
}

// Snapshot is a point-in-time copy. Histogram buckets are non-cumulative.
type Snapshot struct {
	Counters     map[ID]uint64
	Histograms   map[ID][]uint64
	HistogramSum map[ID]time.Duration
}

// New creates a recorder.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id ID) {
	if m == nil || !m.enabled || id >= DecisionLatency {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a decision latency.
func (m *Metrics) Observe(id ID, d time.Duration) {
	if m == nil || !m.enableLatency || id != DecisionLatency {
		return
	}
	if d < 0 {
		d = 0
	}
	atomic.AddUint64(&m.latency.buckets[bucketIndex(d)], 1)
	atomic.AddUint64(&m.latency.sumNs, uint64(d))
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id ID) uint64 {
	if m == nil || id >= DecisionLatency {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all values. Disabled recorders return empty maps.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Counters:     map[ID]uint64{},
		Histograms:   map[ID][]uint64{},
		HistogramSum: map[ID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}

	for id := ID(0); id < DecisionLatency; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency.buckets[i])
		}
		s.Histograms[DecisionLatency] = buckets
		s.HistogramSum[DecisionLatency] = time.Duration(atomic.LoadUint64(&m.latency.sumNs))
	}

	return s
}

func bucketIndex(d time.Duration) int {
	secs := d.Seconds()
	for i, le := range HistogramBuckets {
		if secs <= le {
			return i
		}
	}
	return histBucketCount - 1
}
