package rate

import "errors"

var (
	// ErrRedisUnavailable wraps Redis failures during a limit check.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidConfig is returned by New for a non-positive interval or limit.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")
)
