package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCandidateAnalyze = "candidate:analyze"
)

// CandidateAnalyzePayload 描述一次简历分析所需的最小信息。
type CandidateAnalyzePayload struct {
	CandidateID   uint   `json:"candidate_id"`
	ActorID       uint   `json:"actor_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCandidateAnalyzeTask 构造一个新的简历分析任务。
func NewCandidateAnalyzeTask(candidateID, actorID uint, correlationID string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(CandidateAnalyzePayload{
		CandidateID:   candidateID,
		ActorID:       actorID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCandidateAnalyze, payload, opts...), nil
}
