package protect

import "time"

// Reason explains a denial.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonEmailInvalid
	ReasonRateLimited
	ReasonShieldBlocked
)

func (r Reason) String() string {
	switch r {
	case ReasonEmailInvalid:
		return "email_invalid"
	case ReasonRateLimited:
		return "rate_limited"
	case ReasonShieldBlocked:
		return "shield_blocked"
	default:
		return "none"
	}
}

// Decision is an immutable allow/deny verdict.
type Decision struct {
	denied     bool
	reason     Reason
	detail     string
	retryAfter time.Duration
}

// Allow returns an allow decision.
func Allow() Decision {
	return Decision{}
}

// Deny returns a denial for reason.
func Deny(reason Reason) Decision {
	return Decision{denied: true, reason: reason}
}

// WithDetail returns a copy carrying a short machine-readable detail, such as
// the shield heuristic or email check that matched.
func (d Decision) WithDetail(detail string) Decision {
	d.detail = detail
	return d
}

// WithRetryAfter returns a copy carrying a retry hint for rate-limit denials.
func (d Decision) WithRetryAfter(after time.Duration) Decision {
	d.retryAfter = after
	return d
}

// IsDenied reports whether the request must be rejected.
func (d Decision) IsDenied() bool {
	return d.denied
}

// Reason is ReasonNone for allow decisions.
func (d Decision) Reason() Reason {
	return d.reason
}

// Detail names the check that matched, if any.
func (d Decision) Detail() string {
	return d.detail
}

// RetryAfter is zero unless the denial came from the rate limiter.
func (d Decision) RetryAfter() time.Duration {
	return d.retryAfter
}
