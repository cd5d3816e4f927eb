package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisPublisher_FanoutReachesSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	sub := client.Subscribe(ctx, JobChannel(4), UserChannel(2))
	defer sub.Close()
	for i := 0; i < 2; i++ {
		if _, err := sub.Receive(ctx); err != nil {
			t.Fatalf("confirm subscription: %v", err)
		}
	}

	pub := NewRedisPublisher(client)
	if err := pub.Ready(ctx); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	b := NewBroadcaster(pub, time.Second, discardLogger())
	res := b.Fanout(ctx, ActionDeleted, []Change{{JobID: 4, OwnerID: 2, CandidateIDs: []uint{8, 9}}})
	if !res.OK() || res.Published != 2 || res.NotReady != 0 {
		t.Fatalf("result = %+v", res)
	}

	got := map[string]Event{}
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-sub.Channel():
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				t.Fatalf("decode %q: %v", msg.Payload, err)
			}
			got[msg.Channel] = ev
		case <-deadline:
			t.Fatalf("received %d of 2 messages", len(got))
		}
	}
	for _, channel := range []string{"job_candidates:4", "user_candidates:2"} {
		ev := got[channel]
		if ev.Action != ActionDeleted || ev.JobID != 4 || len(ev.CandidateIDs) != 2 {
			t.Errorf("%s event = %+v", channel, ev)
		}
	}
}

func TestRedisPublisher_NotReadyWhenServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	pub := NewRedisPublisher(client)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pub.Ready(ctx); err == nil {
		t.Error("Ready must fail without a server")
	}

	res := NewBroadcaster(pub, 100*time.Millisecond, discardLogger()).
		Fanout(context.Background(), ActionCreated, []Change{{JobID: 1, OwnerID: 1, CandidateIDs: []uint{1}}})
	if res.NotReady != 2 || len(res.Failures) != 2 {
		t.Errorf("result = %+v", res)
	}
}
