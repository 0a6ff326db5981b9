package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	l, err := New(rdb, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	return l, mr, &now
}

func TestAllowAdmitsUpToMax(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{Interval: time.Minute, Max: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("hit #%d should be allowed", i)
		}
		if res.Remaining != 2-i {
			t.Fatalf("hit #%d remaining = %d", i, res.Remaining)
		}
	}

	res, err := l.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("fourth hit should be denied")
	}
	if res.RetryAfter != time.Minute {
		t.Fatalf("RetryAfter = %v, want 1m", res.RetryAfter)
	}

	other, err := l.Allow(ctx, "user-2")
	if err != nil || !other.Allowed {
		t.Fatalf("other key should be independent: %+v %v", other, err)
	}
}

func TestAllowSlidesWindow(t *testing.T) {
	l, _, now := newTestLimiter(t, Config{Interval: time.Minute, Max: 2})
	ctx := context.Background()

	mustAllow := func(want bool) {
		t.Helper()
		res, err := l.Allow(ctx, "k")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if res.Allowed != want {
			t.Fatalf("Allowed = %v, want %v", res.Allowed, want)
		}
	}

	mustAllow(true)
	*now = now.Add(30 * time.Second)
	mustAllow(true)
	mustAllow(false)

	// first hit leaves the window, one slot frees up
	*now = now.Add(31 * time.Second)
	mustAllow(true)
	mustAllow(false)
}

func TestDeniedHitsDoNotExtendWindow(t *testing.T) {
	l, _, now := newTestLimiter(t, Config{Interval: 10 * time.Second, Max: 1})
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("first hit denied")
	}
	for i := 0; i < 5; i++ {
		*now = now.Add(time.Second)
		if res, _ := l.Allow(ctx, "k"); res.Allowed {
			t.Fatal("hit inside window allowed")
		}
	}
	*now = now.Add(6 * time.Second)
	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("hit after window denied")
	}
}

func TestResetClearsKey(t *testing.T) {
	l, _, _ := newTestLimiter(t, Config{Interval: time.Minute, Max: 1})
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k")
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("expected allow after reset")
	}
}

func TestAllowRedisDown(t *testing.T) {
	l, mr, _ := newTestLimiter(t, Config{Interval: time.Minute, Max: 1})
	mr.Close()

	if _, err := l.Allow(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(nil, Config{Interval: 0, Max: 1}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := New(nil, Config{Interval: time.Second, Max: 0}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
