// Package ratelimit 实现按客户端 IP 的滑动窗口限流。
//
// Redis 后端在多实例间共享计数；内存后端仅用于开发环境，
// 计数不会跨进程共享。
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"hirelane/internal/config"
)

var decisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hirelane",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "限流判定次数（按作用域与结果区分）。",
	},
	[]string{"scope", "result"},
)

// Decision 是一次限流判定结果。
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter 判断 key 是否还能在当前窗口内发起请求。
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// New 根据配置选择后端：redis 可用时使用 Redis，并在 Redis 出错时回退到内存计数。
func New(cfg config.RateLimitConfig, client redis.UniversalClient, logger *slog.Logger) Limiter {
	memory := NewMemoryLimiter(cfg.Limit, cfg.Window)
	if cfg.Backend != "redis" || client == nil {
		if logger != nil {
			logger.Warn("using in-memory rate limiter, counts are not shared across instances")
		}
		return memory
	}
	return &Fallback{
		Primary:   NewRedisLimiter(client, cfg.Limit, cfg.Window),
		Secondary: memory,
		Logger:    logger,
	}
}

// Fallback 在主限流器报错时改用备用限流器。
type Fallback struct {
	Primary   Limiter
	Secondary Limiter
	Logger    *slog.Logger
}

// Allow 实现 Limiter。
func (f *Fallback) Allow(ctx context.Context, key string) (Decision, error) {
	d, err := f.Primary.Allow(ctx, key)
	if err == nil {
		return d, nil
	}
	if f.Logger != nil {
		f.Logger.Warn("primary rate limiter failed, falling back", slog.Any("error", err))
	}
	return f.Secondary.Allow(ctx, key)
}

// StartSweeper 在后台周期性清理内存计数，ctx 结束时退出。
func StartSweeper(ctx context.Context, l Limiter, interval time.Duration) {
	var memory *MemoryLimiter
	switch v := l.(type) {
	case *MemoryLimiter:
		memory = v
	case *Fallback:
		memory, _ = v.Secondary.(*MemoryLimiter)
	}
	if memory == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				memory.Sweep()
			}
		}
	}()
}
