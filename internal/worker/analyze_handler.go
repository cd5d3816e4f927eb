package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"hirelane/internal/analysis"
	"hirelane/internal/broadcast"
	"hirelane/internal/candidate"
	"hirelane/internal/errcode"
	"hirelane/internal/tasks"
)

// Analyzer 执行一次简历分析。
type Analyzer interface {
	Analyze(ctx context.Context, actorID, candidateID uint) (analysis.Analysis, error)
}

// AnalyzeTaskHandler 负责消费简历分析任务。
type AnalyzeTaskHandler struct {
	analyzer  Analyzer
	publisher broadcast.Publisher
	logger    *slog.Logger
}

// NewAnalyzeTaskHandler 创建任务处理器。
func NewAnalyzeTaskHandler(analyzer Analyzer, publisher broadcast.Publisher, logger *slog.Logger) *AnalyzeTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeTaskHandler{analyzer: analyzer, publisher: publisher, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
// 只有临时性错误会返回给 asynq 重试，其余失败都以 SkipRetry 结束。
func (h *AnalyzeTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.CandidateAnalyzePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("candidate_id", uint64(payload.CandidateID)),
		slog.Uint64("user_id", uint64(payload.ActorID)),
	)
	log.Info("starting candidate analysis task")

	notify := AnalysisNotifyMessage{
		Type:          "analysis",
		CandidateID:   payload.CandidateID,
		CorrelationID: payload.CorrelationID,
	}

	result, err := h.analyzer.Analyze(ctx, payload.ActorID, payload.CandidateID)
	switch {
	case err == nil:
		notify.Status = "completed"
		notify.ErrorCode = errcode.OK
		notify.Score = &result.Score
		h.publish(ctx, log, payload.ActorID, notify)
		log.Info("candidate analysis completed", slog.Int("score", result.Score))
		return nil

	case errors.Is(err, candidate.ErrNotFound), errors.Is(err, candidate.ErrForbidden):
		log.Warn("candidate no longer available, skipping task", slog.Any("error", err))
		return nil

	case errors.Is(err, analysis.ErrQuotaExhausted):
		notify.ErrorCode = errcode.QuotaExhausted
	case errors.Is(err, analysis.ErrResumeMissing):
		notify.ErrorCode = errcode.ResumeMissing
	case analysis.IsTemporary(err):
		notify.ErrorCode = errcode.UpstreamBusy
		notify.Temporary = true
		if !isFinalAsynqAttempt(ctx) {
			log.Warn("analysis upstream busy, will retry", slog.Any("error", err))
			return err
		}
	default:
		notify.ErrorCode = errcode.SystemError
	}

	notify.Status = "error"
	notify.ErrorMessage = strings.TrimSpace(err.Error())
	h.publish(ctx, log, payload.ActorID, notify)
	log.Error("candidate analysis failed", slog.Int("error_code", notify.ErrorCode), slog.Any("error", err))
	if notify.Temporary {
		return err
	}
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

func (h *AnalyzeTaskHandler) publish(ctx context.Context, log *slog.Logger, userID uint, notify AnalysisNotifyMessage) {
	if h.publisher == nil {
		return
	}
	data, err := json.Marshal(notify)
	if err != nil {
		log.Error("marshal notification payload failed", slog.Any("error", err))
		return
	}
	if err := h.publisher.Publish(ctx, broadcast.NotifyChannel(userID), data); err != nil {
		log.Error("publish analysis notification failed", slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
