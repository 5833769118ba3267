package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "test", limit, window), mr
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	ok, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if ok {
		t.Fatal("request over the limit should be rejected")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("first key should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatal("second key must have its own budget")
	}
}

func TestLimiter_WindowResets(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := limiter.Allow(ctx, "1.2.3.4"); ok {
		t.Fatal("second request should be rejected")
	}

	mr.FastForward(2 * time.Minute)

	if ok, _ := limiter.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("request after window reset should be allowed")
	}
}

func TestLimiter_RetryAfter(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	limiter.Allow(ctx, "1.2.3.4")
	limiter.Allow(ctx, "1.2.3.4")

	retry := limiter.RetryAfter(ctx, "1.2.3.4")
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("unexpected retry-after %v", retry)
	}
}

func TestLimiter_FailsOpenOnRedisOutage(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	mr.Close()

	ok, err := limiter.Allow(context.Background(), "1.2.3.4")
	if err == nil {
		t.Fatal("expected an error when redis is down")
	}
	if !ok {
		t.Fatal("limiter must fail open when redis is unreachable")
	}
}
