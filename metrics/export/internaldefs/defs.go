package internaldefs

import (
	"github.com/MrEthical07/authshield/metrics"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   metrics.ID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   metrics.ID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const AuditDroppedName = "authshield_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: metrics.ProtectionAllowed, Name: "authshield_protection_allowed_total", Help: "Protected requests forwarded after an allow decision."},
	{ID: metrics.ProtectionDeniedEmail, Name: "authshield_protection_denied_email_total", Help: "Requests denied by email validation."},
	{ID: metrics.ProtectionDeniedRateLimit, Name: "authshield_protection_denied_rate_limit_total", Help: "Requests denied by the sliding-window rate limit."},
	{ID: metrics.ProtectionDeniedShield, Name: "authshield_protection_denied_shield_total", Help: "Requests denied by shield heuristics."},
	{ID: metrics.ProtectionTimeout, Name: "authshield_protection_timeout_total", Help: "Protection decisions that did not finish before the timeout."},
	{ID: metrics.ProtectionError, Name: "authshield_protection_error_total", Help: "Protection decisions that failed."},
	{ID: metrics.ProtectionFailOpen, Name: "authshield_protection_fail_open_total", Help: "Requests forwarded unprotected after a timeout or error."},
	{ID: metrics.Preflight, Name: "authshield_preflight_total", Help: "CORS preflight requests answered."},
	{ID: metrics.SessionGateRedirect, Name: "authshield_session_gate_redirect_total", Help: "Page requests redirected to sign-in."},
	{ID: metrics.SignInSuccess, Name: "authshield_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: metrics.SignInFailure, Name: "authshield_sign_in_failure_total", Help: "Failed sign-ins."},
	{ID: metrics.SignUpSuccess, Name: "authshield_sign_up_success_total", Help: "Successful sign-ups."},
	{ID: metrics.SignUpFailure, Name: "authshield_sign_up_failure_total", Help: "Failed sign-ups."},
	{ID: metrics.SignOut, Name: "authshield_sign_out_total", Help: "Sign-outs."},
}

var HistogramDefs = []HistogramDef{
	{ID: metrics.DecisionLatency, Name: "authshield_protection_decision_seconds", Help: "Protection decision latency, including timeouts."},
}

// BoundSuffix renders a bucket bound for use in an instrument name.
func BoundSuffix(i int) string {
	if i >= len(metrics.HistogramBuckets) {
		return "inf"
	}
	return boundSuffixes[i]
}

var boundSuffixes = [...]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "1", "2_5", "5"}

// BucketCount is the number of buckets including +Inf.
const BucketCount = len(metrics.HistogramBuckets) + 1

// CumulativeBuckets converts non-cumulative bucket counts, padding or
// truncating raw to BucketCount.
func CumulativeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
