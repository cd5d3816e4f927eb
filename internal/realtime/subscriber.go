// Package realtime 订阅候选人变更频道，并在收到事件时通知调用方重新查询。
package realtime

import (
	"context"
	"errors"
	"fmt"
)

// Status 是订阅连接的状态。
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusSubscribed Status = "subscribed"
	StatusError      Status = "error"
	StatusClosed     Status = "closed"
)

// ErrSubscriptionClosed 表示后端在调用方退出前关闭了订阅。
var ErrSubscriptionClosed = errors.New("subscription closed by backend")

// Subscription 是一个已确认的频道订阅。
type Subscription interface {
	Messages() <-chan string
	Close() error
}

// Source 打开频道订阅；返回前必须确认订阅已生效。
type Source interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscriber 每次 Run 只维护一个订阅，不做自动重连。
type Subscriber struct {
	source Source
}

// NewSubscriber 构造 Subscriber。
func NewSubscriber(source Source) *Subscriber {
	return &Subscriber{source: source}
}

// Run 阻塞直到 ctx 结束或订阅异常。
// onStatus 接收 connecting → subscribed → error|closed 的状态迁移；
// onChange 在每条消息到达时被调用，消息内容不会传递出去，调用方应自行重新查询。
func (s *Subscriber) Run(ctx context.Context, channel string, onStatus func(Status, error), onChange func()) error {
	if onStatus == nil {
		onStatus = func(Status, error) {}
	}
	onStatus(StatusConnecting, nil)

	sub, err := s.source.Subscribe(ctx, channel)
	if err != nil {
		if ctx.Err() != nil {
			onStatus(StatusClosed, nil)
			return nil
		}
		err = fmt.Errorf("subscribe %q: %w", channel, err)
		onStatus(StatusError, err)
		return err
	}
	defer sub.Close()
	onStatus(StatusSubscribed, nil)

	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			onStatus(StatusClosed, nil)
			return nil
		case _, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					onStatus(StatusClosed, nil)
					return nil
				}
				onStatus(StatusError, ErrSubscriptionClosed)
				return ErrSubscriptionClosed
			}
			if onChange != nil {
				onChange()
			}
		}
	}
}
