package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config holds sliding-window parameters.
type Config struct {
	Prefix   string
	Interval time.Duration
	Max      int
}

// Result reports the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Returns {allowed, count, oldestScore}.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count < limit then
  redis.call("ZADD", key, now, member)
  redis.call("PEXPIRE", key, window)
  return {1, count + 1, 0}
end

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local score = 0
if oldest[2] then
  score = tonumber(oldest[2])
end
return {0, count, score}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Limiter enforces a sliding-window limit per key.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if cfg.Interval <= 0 || cfg.Max <= 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
	}, nil
}

// Allow records a hit for key when it fits in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	nowMs := l.now().UnixMilli()
	windowMs := l.config.Interval.Milliseconds()

	raw, err := slidingWindowLua.Run(
		ctx,
		l.redis,
		[]string{l.key(key)},
		nowMs,
		windowMs,
		l.config.Max,
		fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	count := int(raw[1])
	if raw[0] == 1 {
		return Result{Allowed: true, Remaining: l.config.Max - count}, nil
	}

	retry := time.Duration(raw[2]+windowMs-nowMs) * time.Millisecond
	if retry < 0 {
		retry = 0
	}
	return Result{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
}

// Reset drops all recorded hits for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(key string) string {
	return l.config.Prefix + ":" + key
}
