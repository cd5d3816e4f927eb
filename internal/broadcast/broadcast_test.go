package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	readyErr  error
	failOn    map[string]error
	published []published
}

func (p *fakePublisher) Ready(context.Context) error { return p.readyErr }

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failOn[channel]; err != nil {
		return err
	}
	p.published = append(p.published, published{channel: channel, payload: payload})
	return nil
}

func TestGroup_ByJob(t *testing.T) {
	changes := Group([]Affected{
		{CandidateID: 3, JobID: 20, OwnerID: 1},
		{CandidateID: 1, JobID: 10, OwnerID: 1},
		{CandidateID: 2, JobID: 20, OwnerID: 1},
	})

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].JobID != 10 || len(changes[0].CandidateIDs) != 1 {
		t.Errorf("first change = %+v", changes[0])
	}
	if changes[1].JobID != 20 || len(changes[1].CandidateIDs) != 2 || changes[1].CandidateIDs[0] != 3 {
		t.Errorf("second change = %+v", changes[1])
	}
}

func TestFanout_PublishesToJobAndUserChannels(t *testing.T) {
	pub := &fakePublisher{}
	b := NewBroadcaster(pub, time.Second, discardLogger())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	res := b.Fanout(context.Background(), ActionStatusChanged, []Change{
		{JobID: 7, OwnerID: 3, CandidateIDs: []uint{1, 2}},
	})

	if res.Attempted != 2 || res.Published != 2 || !res.OK() {
		t.Fatalf("result = %+v", res)
	}
	if pub.published[0].channel != "job_candidates:7" || pub.published[1].channel != "user_candidates:3" {
		t.Errorf("channels = %q, %q", pub.published[0].channel, pub.published[1].channel)
	}

	var ev Event
	if err := json.Unmarshal(pub.published[0].payload, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Action != ActionStatusChanged || ev.JobID != 7 || len(ev.CandidateIDs) != 2 || !ev.Timestamp.Equal(fixed) {
		t.Errorf("event = %+v", ev)
	}
	if string(pub.published[0].payload) != string(pub.published[1].payload) {
		t.Error("both channels must receive the same payload")
	}
}

func TestFanout_PublishesEvenWhenNotReady(t *testing.T) {
	pub := &fakePublisher{readyErr: context.DeadlineExceeded}
	b := NewBroadcaster(pub, 10*time.Millisecond, discardLogger())

	res := b.Fanout(context.Background(), ActionDeleted, []Change{{JobID: 1, OwnerID: 1, CandidateIDs: []uint{5}}})

	if res.NotReady != 2 {
		t.Errorf("NotReady = %d, want 2", res.NotReady)
	}
	if res.Published != 2 {
		t.Errorf("Published = %d, want 2", res.Published)
	}
}

func TestFanout_FailuresAreCollectedNotFatal(t *testing.T) {
	pub := &fakePublisher{failOn: map[string]error{"job_candidates:1": errors.New("boom")}}
	b := NewBroadcaster(pub, time.Second, discardLogger())

	res := b.Fanout(context.Background(), ActionTagsChanged, []Change{
		{JobID: 1, OwnerID: 9, CandidateIDs: []uint{1}},
		{JobID: 2, OwnerID: 9, CandidateIDs: []uint{2}},
	})

	if res.Attempted != 4 || res.Published != 3 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Failures) != 1 || res.Failures[0].Channel != "job_candidates:1" {
		t.Errorf("failures = %+v", res.Failures)
	}
}

func TestFanout_NilBroadcasterIsNoop(t *testing.T) {
	var b *Broadcaster
	res := b.Fanout(context.Background(), ActionCreated, []Change{{JobID: 1, OwnerID: 1}})
	if res.Attempted != 0 {
		t.Errorf("expected no attempts, got %d", res.Attempted)
	}
}
