package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisSource_PublishReachesMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	sub, err := NewRedisSource(client).Subscribe(ctx, "job_candidates:3")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Subscribe 返回时订阅已确认，发布立即可见。
	n, err := client.Publish(ctx, "job_candidates:3", `{"action":"candidate.created"}`).Result()
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}

	select {
	case payload := <-sub.Messages():
		if payload != `{"action":"candidate.created"}` {
			t.Errorf("payload = %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not forwarded")
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Error("unexpected message after Close")
		}
	case <-time.After(2 * time.Second):
		t.Error("Messages not closed after Close")
	}
}

func TestRedisSource_SubscriberRunRefreshesOnPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var log statusLog
	changes := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewSubscriber(NewRedisSource(client)).Run(ctx, "user_candidates:1", log.add, func() { changes <- struct{}{} })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mr.PubSubNumSub("user_candidates:1")["user_candidates:1"] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never confirmed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	mr.Publish("user_candidates:1", "ignored")

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange not called")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run after cancel = %v", err)
	}
	got := log.snapshot()
	if len(got) < 2 || got[0] != StatusConnecting || got[1] != StatusSubscribed {
		t.Errorf("statuses = %v", got)
	}
}
