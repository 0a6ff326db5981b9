package protect

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authshield/emailcheck"
	"github.com/MrEthical07/authshield/internal/rate"
	"github.com/MrEthical07/authshield/shield"
)

// Service evaluates one rule for a request. Implementations should return
// promptly once ctx is done; the endpoint stops waiting at its timeout either way.
type Service interface {
	Decide(ctx context.Context, r *http.Request, rule Rule) (Decision, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, r *http.Request, rule Rule) (Decision, error)

func (f ServiceFunc) Decide(ctx context.Context, r *http.Request, rule Rule) (Decision, error) {
	return f(ctx, r, rule)
}

// Limiter is satisfied by the Redis sliding-window limiter.
type Limiter interface {
	Allow(ctx context.Context, key string) (rate.Result, error)
}

// Local decides rules in-process with the email validator, the sliding-window
// limiter and the shield detector. A nil component allows its rule.
type Local struct {
	Email   *emailcheck.Validator
	Limiter Limiter
	Shield  *shield.Detector
}

var _ Service = (*Local)(nil)

// Decide implements Service.
func (l *Local) Decide(ctx context.Context, r *http.Request, rule Rule) (Decision, error) {
	switch rule.Kind {
	case RuleEmailValidation:
		if l.Email == nil {
			return Allow(), nil
		}
		res, err := l.Email.Check(ctx, rule.Email)
		if err != nil {
			return Decision{}, serviceError(err)
		}
		if res.Blocked {
			return Deny(ReasonEmailInvalid).WithDetail(string(res.Reason)), nil
		}
		return Allow(), nil

	case RuleShield:
		if l.Shield == nil {
			return Allow(), nil
		}
		if v := l.Shield.Inspect(r); v.Blocked {
			return Deny(ReasonShieldBlocked).WithDetail(v.Rule), nil
		}
		return Allow(), nil

	case RuleRateLimit:
		if l.Limiter == nil {
			return Allow(), nil
		}
		res, err := l.Limiter.Allow(ctx, rule.Fingerprint)
		if err != nil {
			return Decision{}, serviceError(err)
		}
		if !res.Allowed {
			return Deny(ReasonRateLimited).WithRetryAfter(res.RetryAfter), nil
		}
		return Allow(), nil
	}

	return Decision{}, fmt.Errorf("%w: unknown rule %d", ErrProtectionService, rule.Kind)
}

// serviceError keeps context errors recognisable so the endpoint can tell a
// timeout from a failure.
func serviceError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProtectionService, err)
}
