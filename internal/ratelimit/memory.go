package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter 在进程内记录每个 key 的请求时间戳。
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewMemoryLimiter 构造 MemoryLimiter。
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow 实现 Limiter。
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	kept := m.hits[key][:0]
	for _, ts := range m.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= m.limit {
		m.hits[key] = kept
		return Decision{
			Allowed:    false,
			Limit:      m.limit,
			RetryAfter: kept[0].Add(m.window).Sub(now),
		}, nil
	}

	kept = append(kept, now)
	m.hits[key] = kept
	return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit - len(kept)}, nil
}

// Sweep 清理窗口外已无记录的 key，避免 map 无限增长。
func (m *MemoryLimiter) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.window)
	for key, hits := range m.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(m.hits, key)
		}
	}
}
