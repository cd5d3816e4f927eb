// Package broadcast 负责把候选人变更通知扇出到 job 与 user 两类实时频道。
//
// 推送只携带 action、受影响的 id 和时间戳；接收方总是重新查询，
// 因此这里的发布是尽力而为的：失败只记录日志，不会向调用方返回 error。
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 广播动作。
const (
	ActionCreated       = "candidate.created"
	ActionStatusChanged = "candidate.status_changed"
	ActionTagsChanged   = "candidate.tags_changed"
	ActionDeleted       = "candidate.deleted"
	ActionAnalyzed      = "candidate.analyzed"
)

var publishTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hirelane",
		Subsystem: "broadcast",
		Name:      "publish_total",
		Help:      "实时频道发布次数（按结果区分）。",
	},
	[]string{"result"},
)

// JobChannel 返回职位维度的频道名。
func JobChannel(jobID uint) string {
	return fmt.Sprintf("job_candidates:%d", jobID)
}

// UserChannel 返回用户维度的频道名。
func UserChannel(userID uint) string {
	return fmt.Sprintf("user_candidates:%d", userID)
}

// NotifyChannel 返回面向单个用户的任务通知频道名。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// Publisher 是实时频道的最小抽象。
type Publisher interface {
	// Ready 确认后端可用；调用方用有界 context 等待。
	Ready(ctx context.Context) error
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Affected 描述一条被变更的候选人及其所属职位的 Owner。
type Affected struct {
	CandidateID uint
	JobID       uint
	OwnerID     uint
}

// Change 是按职位聚合后的变更。
type Change struct {
	JobID        uint
	OwnerID      uint
	CandidateIDs []uint
}

// Event 是推送给订阅者的消息体。
type Event struct {
	Action       string    `json:"action"`
	JobID        uint      `json:"job_id"`
	CandidateIDs []uint    `json:"candidate_ids"`
	Timestamp    time.Time `json:"timestamp"`
}

// Group 按职位聚合受影响的候选人，输出按 JobID 升序。
func Group(rows []Affected) []Change {
	index := make(map[uint]int, len(rows))
	changes := make([]Change, 0, len(rows))
	for _, row := range rows {
		i, ok := index[row.JobID]
		if !ok {
			index[row.JobID] = len(changes)
			changes = append(changes, Change{JobID: row.JobID, OwnerID: row.OwnerID})
			i = len(changes) - 1
		}
		changes[i].CandidateIDs = append(changes[i].CandidateIDs, row.CandidateID)
	}
	sort.Slice(changes, func(a, b int) bool { return changes[a].JobID < changes[b].JobID })
	return changes
}

// Failure 记录一次失败的发布。
type Failure struct {
	Channel string
	Err     error
}

// Result 汇总一次扇出；调用方可以忽略它。
type Result struct {
	Attempted int
	Published int
	NotReady  int
	Failures  []Failure
}

// OK 表示全部频道都发布成功。
func (r Result) OK() bool {
	return len(r.Failures) == 0
}

// Broadcaster 顺序地向每个受影响职位的两个频道发布同一条事件。
type Broadcaster struct {
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewBroadcaster 构造 Broadcaster；timeout 约束每个频道的就绪等待与发布。
func NewBroadcaster(publisher Publisher, timeout time.Duration, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Fanout 对每个 Change 发布到 job 与 user 频道。
func (b *Broadcaster) Fanout(ctx context.Context, action string, changes []Change) Result {
	var result Result
	if b == nil || b.publisher == nil {
		return result
	}

	for _, change := range changes {
		event := Event{
			Action:       action,
			JobID:        change.JobID,
			CandidateIDs: change.CandidateIDs,
			Timestamp:    b.now().UTC(),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			b.logger.Error("marshal broadcast event failed", slog.Any("error", err))
			result.Failures = append(result.Failures, Failure{Err: err})
			continue
		}

		for _, channel := range []string{JobChannel(change.JobID), UserChannel(change.OwnerID)} {
			result.Attempted++
			ready, err := b.publishOne(ctx, channel, payload)
			if !ready {
				result.NotReady++
			}
			if err != nil {
				publishTotal.WithLabelValues("error").Inc()
				b.logger.Warn("broadcast publish failed",
					slog.String("channel", channel),
					slog.String("action", action),
					slog.Any("error", err),
				)
				result.Failures = append(result.Failures, Failure{Channel: channel, Err: err})
				continue
			}
			publishTotal.WithLabelValues("ok").Inc()
			result.Published++
		}
	}
	return result
}

// publishOne 在超时内等待就绪；未确认就绪时仍然尝试发送。
func (b *Broadcaster) publishOne(ctx context.Context, channel string, payload []byte) (bool, error) {
	ready := true
	readyCtx, cancel := context.WithTimeout(ctx, b.timeout)
	if err := b.publisher.Ready(readyCtx); err != nil {
		ready = false
		b.logger.Warn("realtime channel not ready, publishing anyway",
			slog.String("channel", channel),
			slog.Any("error", err),
		)
	}
	cancel()

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	return ready, b.publisher.Publish(sendCtx, channel, payload)
}
