package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// loginGuard 统计登录失败次数，达到阈值后在 ttl 内锁定用户名。
type loginGuard struct {
	client    redis.UniversalClient
	threshold int64
	ttl       time.Duration
}

func newLoginGuard(client redis.UniversalClient, threshold int, ttl time.Duration) *loginGuard {
	if client == nil {
		return nil
	}
	return &loginGuard{client: client, threshold: int64(threshold), ttl: ttl}
}

func (g *loginGuard) failKey(username string) string { return loginFailKeyPrefix + username }
func (g *loginGuard) lockKey(username string) string { return loginLockKeyPrefix + username }

// Locked 查询锁定标记；Redis 不可用时不锁定。
func (g *loginGuard) Locked(ctx context.Context, username string) bool {
	if g == nil {
		return false
	}
	ttl, err := g.client.TTL(ctx, g.lockKey(username)).Result()
	return err == nil && ttl > 0
}

// RecordFailure 在同一事务里自增并刷新过期时间，返回窗口内的失败次数。
func (g *loginGuard) RecordFailure(ctx context.Context, username string) (int64, error) {
	if g == nil {
		return 0, nil
	}
	var incr *redis.IntCmd
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, g.failKey(username))
		pipe.Expire(ctx, g.failKey(username), g.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	count := incr.Val()
	if count >= g.threshold {
		if err := g.client.Set(ctx, g.lockKey(username), "1", g.ttl).Err(); err != nil {
			return count, fmt.Errorf("set login lock: %w", err)
		}
	}
	return count, nil
}

// Reset 在登录成功后清除失败计数。
func (g *loginGuard) Reset(ctx context.Context, username string) {
	if g == nil {
		return
	}
	_ = g.client.Del(ctx, g.failKey(username)).Err()
}
