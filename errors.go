package authshield

import "errors"

var (
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid authshield configuration")
	// ErrRedisRequired is returned by Build when no Redis client was supplied.
	ErrRedisRequired = errors.New("authshield: redis client is required")
	// ErrAlreadyBuilt is returned when Build is called twice on one Builder.
	ErrAlreadyBuilt = errors.New("authshield: builder already used")
)
