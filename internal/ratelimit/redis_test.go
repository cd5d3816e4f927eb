package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hirelane/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	_, client := newRedis(t)
	r := NewRedisLimiter(client, 2, time.Minute)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	r.now = func() time.Time { return clock }
	ctx := context.Background()

	d, err := r.Allow(ctx, "apply:1.2.3.4")
	if err != nil || !d.Allowed || d.Remaining != 1 {
		t.Fatalf("first = %+v, %v", d, err)
	}
	clock = start.Add(20 * time.Second)
	if d, err = r.Allow(ctx, "apply:1.2.3.4"); err != nil || !d.Allowed || d.Remaining != 0 {
		t.Fatalf("second = %+v, %v", d, err)
	}

	clock = start.Add(30 * time.Second)
	d, err = r.Allow(ctx, "apply:1.2.3.4")
	if err != nil || d.Allowed {
		t.Fatalf("third = %+v, %v", d, err)
	}
	if d.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s (oldest hit leaves the window)", d.RetryAfter)
	}

	n, err := client.ZCard(ctx, "ratelimit:apply:1.2.3.4").Result()
	if err != nil {
		t.Fatalf("ZCard: %v", err)
	}
	if n != 2 {
		t.Errorf("window holds %d hits, rejected hit must be dropped", n)
	}

	if d, _ := r.Allow(ctx, "apply:5.6.7.8"); !d.Allowed {
		t.Error("other keys must have their own window")
	}

	clock = start.Add(61 * time.Second)
	if d, err = r.Allow(ctx, "apply:1.2.3.4"); err != nil || !d.Allowed {
		t.Errorf("after oldest hit expired = %+v, %v", d, err)
	}
}

func TestRedisLimiter_SetsWindowExpiry(t *testing.T) {
	mr, client := newRedis(t)
	r := NewRedisLimiter(client, 5, time.Minute)

	if _, err := r.Allow(context.Background(), "auth:9.9.9.9"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ttl := mr.TTL("ratelimit:auth:9.9.9.9"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within one window", ttl)
	}
}

func TestNew_FallsBackWhenRedisDown(t *testing.T) {
	mr, client := newRedis(t)
	l := New(config.RateLimitConfig{Backend: "redis", Limit: 1, Window: time.Minute}, client, nil)
	if _, ok := l.(*Fallback); !ok {
		t.Fatalf("New returned %T, want *Fallback", l)
	}
	mr.Close()

	ctx := context.Background()
	d, err := l.Allow(ctx, "apply:1.1.1.1")
	if err != nil || !d.Allowed {
		t.Fatalf("first with redis down = %+v, %v", d, err)
	}
	if d, _ := l.Allow(ctx, "apply:1.1.1.1"); d.Allowed {
		t.Error("memory fallback must keep limiting")
	}
}
