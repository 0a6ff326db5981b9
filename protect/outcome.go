package protect

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/authshield/metrics"
)

// Taxonomy errors returned by Outcome.Err.
var (
	ErrValidationDenied  = errors.New("email validation denied")
	ErrRateLimitDenied   = errors.New("rate limit denied")
	ErrShieldDenied      = errors.New("shield denied")
	ErrProtectionTimeout = errors.New("protection check timed out")
	ErrProtectionService = errors.New("protection service error")
)

// Outcome is the terminal state of one protected request.
type Outcome uint8

const (
	OutcomeAllowed Outcome = iota
	OutcomeDeniedEmail
	OutcomeDeniedRateLimit
	OutcomeDeniedShield
	OutcomeTimeout
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeDeniedEmail:
		return "denied_email"
	case OutcomeDeniedRateLimit:
		return "denied_rate_limit"
	case OutcomeDeniedShield:
		return "denied_shield"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// Err returns the taxonomy error for o, nil for OutcomeAllowed.
func (o Outcome) Err() error {
	switch o {
	case OutcomeAllowed:
		return nil
	case OutcomeDeniedEmail:
		return ErrValidationDenied
	case OutcomeDeniedRateLimit:
		return ErrRateLimitDenied
	case OutcomeDeniedShield:
		return ErrShieldDenied
	case OutcomeTimeout:
		return ErrProtectionTimeout
	default:
		return ErrProtectionService
	}
}

func (o Outcome) metric() metrics.ID {
	switch o {
	case OutcomeAllowed:
		return metrics.ProtectionAllowed
	case OutcomeDeniedEmail:
		return metrics.ProtectionDeniedEmail
	case OutcomeDeniedRateLimit:
		return metrics.ProtectionDeniedRateLimit
	case OutcomeDeniedShield:
		return metrics.ProtectionDeniedShield
	case OutcomeTimeout:
		return metrics.ProtectionTimeout
	default:
		return metrics.ProtectionError
	}
}

// outcomeOf maps a decision. A denial without a known reason is forwarded.
func outcomeOf(d Decision) Outcome {
	if !d.IsDenied() {
		return OutcomeAllowed
	}
	switch d.Reason() {
	case ReasonEmailInvalid:
		return OutcomeDeniedEmail
	case ReasonRateLimited:
		return OutcomeDeniedRateLimit
	case ReasonShieldBlocked:
		return OutcomeDeniedShield
	default:
		return OutcomeAllowed
	}
}

// DenialResponse returns the status and error message for a denial reason.
// ok is false for ReasonNone.
func DenialResponse(reason Reason) (status int, message string, ok bool) {
	switch reason {
	case ReasonEmailInvalid:
		return http.StatusBadRequest, "Email validation failed", true
	case ReasonRateLimited:
		return http.StatusTooManyRequests, "Rate limit exceeded", true
	case ReasonShieldBlocked:
		return http.StatusForbidden, "Shield validation failed", true
	default:
		return 0, "", false
	}
}
