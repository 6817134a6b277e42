package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"attribute-change-control/backend/internal/ratelimit/metrics"
)

func TestInMemoryLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewInMemory(time.Hour)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()
	key := "submit:subject:s1"

	first := limiter.Allow(ctx, key, 2)
	if !first.Allowed || first.Count != 1 || first.Remaining != 1 {
		t.Fatalf("unexpected first decision: %+v", first)
	}
	second := limiter.Allow(ctx, key, 2)
	if !second.Allowed || second.Count != 2 || second.Remaining != 0 {
		t.Fatalf("unexpected second decision: %+v", second)
	}
	third := limiter.Allow(ctx, key, 2)
	if third.Allowed || third.Count != 3 || third.Remaining != 0 {
		t.Fatalf("unexpected third decision: %+v", third)
	}
	if !third.ResetAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ResetAt = %v", third.ResetAt)
	}
	now = now.Add(time.Hour + time.Second)
	reset := limiter.Allow(ctx, key, 2)
	if !reset.Allowed || reset.Count != 1 {
		t.Fatalf("expected counter reset after window, got %+v", reset)
	}
}

func TestInMemoryLimiter_Defaults(t *testing.T) {
	limiter := NewInMemory(0)
	if limiter.window != time.Minute {
		t.Fatalf("expected default 1 minute window, got %v", limiter.window)
	}
	d := limiter.Allow(context.Background(), "k", 0)
	if !d.Allowed || d.Limit != 1 {
		t.Fatalf("expected limit floor of 1, got %+v", d)
	}
}

func TestRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	limiter := NewRedis(client, time.Hour)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		d := limiter.Allow(ctx, "ip:10.0.0.1", 2)
		if !d.Allowed || d.Count != i {
			t.Fatalf("call %d: %+v", i, d)
		}
	}
	if d := limiter.Allow(ctx, "ip:10.0.0.1", 2); d.Allowed {
		t.Fatalf("third call should be denied: %+v", d)
	}
	if !mr.Exists("acc:rl:ip:10.0.0.1") {
		t.Error("counter key not written with prefix")
	}
	mr.FastForward(time.Hour + time.Second)
	if d := limiter.Allow(ctx, "ip:10.0.0.1", 2); !d.Allowed || d.Count != 1 {
		t.Fatalf("expected reset after window, got %+v", d)
	}
}

func TestRedisLimiter_FallbackWhenUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 5 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	reg := prometheus.NewRegistry()
	limiter := NewRedis(client, time.Minute)
	limiter.Metrics = metrics.New(reg)
	ctx := context.Background()

	if d := limiter.Allow(ctx, "k", 1); !d.Allowed || d.Count != 1 {
		t.Fatalf("first fallback decision: %+v", d)
	}
	if d := limiter.Allow(ctx, "k", 1); d.Allowed {
		t.Fatalf("fallback should enforce the limit: %+v", d)
	}
	if got := testutil.ToFloat64(limiter.Metrics.RedisFallbacks); got != 2 {
		t.Errorf("fallbacks = %v, want 2", got)
	}
}

func TestRedisLimiter_NoClientNoFallback(t *testing.T) {
	limiter := &RedisLimiter{Window: time.Minute}
	d := limiter.Allow(context.Background(), "k", 3)
	if !d.Allowed || d.Remaining != 3 {
		t.Fatalf("expected permissive decision, got %+v", d)
	}
}

func TestObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	o := &Observed{Limiter: NewInMemory(time.Minute), Scope: "submit_ip", Metrics: m}
	ctx := context.Background()
	o.Allow(ctx, "k", 1)
	o.Allow(ctx, "k", 1)
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("submit_ip", "allowed")); got != 1 {
		t.Errorf("allowed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("submit_ip", "denied")); got != 1 {
		t.Errorf("denied = %v, want 1", got)
	}
}
