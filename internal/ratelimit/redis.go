package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter 使用有序集合实现滑动窗口，成员分值为请求时间（毫秒）。
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter 构造 RedisLimiter。
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

// Allow 实现 Limiter。
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := r.prefix + key
	now := r.now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - r.window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
		card = pipe.ZCard(ctx, redisKey)
		oldest = pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
		pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: member})
		pipe.PExpire(ctx, redisKey, r.window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("sliding window for %q: %w", key, err)
	}

	count := int(card.Val())
	if count < r.limit {
		return Decision{Allowed: true, Limit: r.limit, Remaining: r.limit - count - 1}, nil
	}

	// 超限的请求不计入窗口。
	if err := r.client.ZRem(ctx, redisKey, member).Err(); err != nil {
		return Decision{}, fmt.Errorf("drop rejected hit for %q: %w", key, err)
	}
	retry := r.window
	if zs := oldest.Val(); len(zs) > 0 {
		retry = time.UnixMilli(int64(zs[0].Score)).Add(r.window).Sub(now)
	}
	return Decision{Allowed: false, Limit: r.limit, RetryAfter: retry}, nil
}
