package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSource 基于 Redis Pub/Sub 的订阅来源。
type RedisSource struct {
	client redis.UniversalClient
}

// NewRedisSource 构造 RedisSource。
func NewRedisSource(client redis.UniversalClient) *RedisSource {
	return &RedisSource{client: client}
}

// Subscribe 订阅频道，并等待服务端的订阅确认。
func (s *RedisSource) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("confirm subscription: %w", err)
	}

	out := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			case <-done:
				return
			}
		}
	}()
	return &redisSubscription{pubsub: pubsub, messages: out, done: done}, nil
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	messages chan string
	done     chan struct{}
}

func (s *redisSubscription) Messages() <-chan string { return s.messages }

func (s *redisSubscription) Close() error {
	close(s.done)
	return s.pubsub.Close()
}
