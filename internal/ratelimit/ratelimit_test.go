package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	m := NewMemoryLimiter(2, time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, _ := m.Allow(ctx, "ip")
		if !d.Allowed {
			t.Fatalf("request %d rejected", i)
		}
	}
	clock = clock.Add(30 * time.Second)
	d, _ := m.Allow(ctx, "ip")
	if d.Allowed {
		t.Fatal("third request inside window should be rejected")
	}
	if d.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", d.RetryAfter)
	}
	if other, _ := m.Allow(ctx, "other-ip"); !other.Allowed {
		t.Error("keys must be independent")
	}

	clock = clock.Add(31 * time.Second)
	if d, _ := m.Allow(ctx, "ip"); !d.Allowed {
		t.Error("request after window should be allowed")
	}
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	m := NewMemoryLimiter(50, time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := m.Allow(context.Background(), "ip"); d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	m := NewMemoryLimiter(1, time.Second)
	clock := time.Now()
	m.now = func() time.Time { return clock }
	_, _ = m.Allow(context.Background(), "ip")
	clock = clock.Add(2 * time.Second)
	m.Sweep()
	if len(m.hits) != 0 {
		t.Errorf("hits not swept: %v", m.hits)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestFallback_UsesSecondaryOnError(t *testing.T) {
	f := &Fallback{Primary: failingLimiter{}, Secondary: NewMemoryLimiter(1, time.Minute)}
	d, err := f.Allow(context.Background(), "ip")
	if err != nil || !d.Allowed {
		t.Fatalf("decision = %+v err = %v", d, err)
	}
	if d, _ := f.Allow(context.Background(), "ip"); d.Allowed {
		t.Error("secondary limit should apply")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/limited", Middleware(NewMemoryLimiter(1, time.Minute), "test", nil), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/open", Middleware(failingLimiter{}, "test", nil), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/limited", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("limiter errors must fail open, got %d", w.Code)
	}
}
