package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"hirelane/internal/activity"
	"hirelane/internal/broadcast"
	"hirelane/internal/candidate"
	"hirelane/internal/database"
	"hirelane/internal/errcode"
	"hirelane/internal/storage"
	"hirelane/internal/tasks"
)

// 审计动作。
const (
	AuditAnalyzed      = broadcast.ActionAnalyzed
	AuditAnalyzeFailed = "candidate.analyze_failed"
	AuditQuotaUpdated  = "quota.updated"
)

// ResumeReader 读取简历文件内容。
type ResumeReader interface {
	ReadObject(ctx context.Context, key string) ([]byte, string, error)
}

// Enqueuer 投递后台任务，*asynq.Client 满足该接口。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Options 是 Service 的可调参数。
type Options struct {
	DefaultAllotment int
	MaxDuration      time.Duration
	MaxRetry         int
}

// Analysis 是一次成功分析的结果。
type Analysis struct {
	CandidateID uint      `json:"candidate_id"`
	Score       int       `json:"score"`
	Summary     string    `json:"summary"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
}

// QuotaView 是额度的对外视图。
type QuotaView struct {
	UserID    uint `json:"user_id"`
	Allotment int  `json:"allotment"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
}

func viewOf(q database.UserQuota) QuotaView {
	remaining := q.Allotment - q.Used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaView{UserID: q.UserID, Allotment: q.Allotment, Used: q.Used, Remaining: remaining}
}

// Service 负责分析流程：归属校验、额度、读取简历、调用模型、持久化与通知。
type Service struct {
	db       *gorm.DB
	provider Provider
	storage  ResumeReader
	audit    candidate.AuditRecorder
	notifier candidate.Notifier
	queue    Enqueuer
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewService 构造 Service；provider 为 nil 时同步分析不可用，queue 为 nil 时无法入队。
func NewService(
	db *gorm.DB,
	provider Provider,
	storage ResumeReader,
	audit candidate.AuditRecorder,
	notifier candidate.Notifier,
	queue Enqueuer,
	logger *slog.Logger,
	opts Options,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 60 * time.Second
	}
	return &Service{
		db:       db,
		provider: provider,
		storage:  storage,
		audit:    audit,
		notifier: notifier,
		queue:    queue,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

type target struct {
	ID                uint
	JobID             uint
	OwnerID           uint
	ResumeKey         string
	ResumeContentType string
	JobTitle          string
	JobDescription    string
}

const targetColumns = "candidates.id, candidates.job_id, candidates.resume_key, candidates.resume_content_type, " +
	"jobs.user_id AS owner_id, jobs.title AS job_title, jobs.description AS job_description"

func (s *Service) loadTarget(ctx context.Context, actorID, candidateID uint) (target, error) {
	var rows []target
	if err := s.db.WithContext(ctx).
		Table("candidates").
		Select(targetColumns).
		Joins("JOIN jobs ON jobs.id = candidates.job_id AND jobs.deleted_at IS NULL").
		Where("candidates.id = ?", candidateID).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return target{}, fmt.Errorf("load candidate: %w", err)
	}
	if len(rows) == 0 {
		return target{}, candidate.ErrNotFound
	}
	if rows[0].OwnerID != actorID {
		return target{}, candidate.ErrForbidden
	}
	return rows[0], nil
}

// Analyze 同步执行一次分析并消耗一个额度。
func (s *Service) Analyze(ctx context.Context, actorID, candidateID uint) (Analysis, error) {
	if s.provider == nil {
		return Analysis{}, ErrDisabled
	}
	t, err := s.loadTarget(ctx, actorID, candidateID)
	if err != nil {
		return Analysis{}, err
	}
	quota, err := s.Quota(ctx, t.OwnerID)
	if err != nil {
		return Analysis{}, err
	}
	if quota.Remaining <= 0 {
		return Analysis{}, ErrQuotaExhausted
	}
	if t.ResumeKey == "" || s.storage == nil {
		s.recordFailure(ctx, actorID, t, errcode.ResumeMissing, false)
		return Analysis{}, ErrResumeMissing
	}

	data, contentType, err := s.storage.ReadObject(ctx, t.ResumeKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.recordFailure(ctx, actorID, t, errcode.ResumeMissing, false)
			return Analysis{}, fmt.Errorf("%w: %v", ErrResumeMissing, err)
		}
		// 存储不可达属于临时故障，交给调用方重试。
		s.recordFailure(ctx, actorID, t, errcode.UpstreamBusy, true)
		return Analysis{}, &Error{Temporary: true, Err: fmt.Errorf("read resume: %w", err)}
	}
	mimeType := baseMIMEType(t.ResumeContentType)
	if mimeType == "" {
		mimeType = baseMIMEType(contentType)
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = baseMIMEType(mimetype.Detect(data).String())
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.MaxDuration)
	defer cancel()
	result, err := s.provider.Score(callCtx, Input{
		JobTitle:       t.JobTitle,
		JobDescription: t.JobDescription,
		Resume:         data,
		MIMEType:       mimeType,
	})
	if err != nil {
		temp := IsTemporary(err)
		code := errcode.SystemError
		if temp {
			code = errcode.UpstreamBusy
		}
		s.recordFailure(ctx, actorID, t, code, temp)
		var aiErr *Error
		if !errors.As(err, &aiErr) {
			err = &Error{Temporary: temp, Err: err}
		}
		return Analysis{}, err
	}

	now := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&database.UserQuota{}).
			Where("user_id = ? AND used < allotment", t.OwnerID).
			Updates(map[string]any{"used": gorm.Expr("used + 1"), "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("consume quota: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrQuotaExhausted
		}
		if err := tx.Model(&database.Candidate{}).
			Where("id = ?", t.ID).
			Updates(map[string]any{
				"ai_score":    result.Score,
				"ai_summary":  result.Summary,
				"analyzed_at": now,
				"updated_at":  now,
			}).Error; err != nil {
			return fmt.Errorf("save analysis: %w", err)
		}
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}

	s.record(ctx, activity.Entry{
		ActorID:      actorID,
		Action:       AuditAnalyzed,
		ResourceType: activity.ResourceCandidate,
		ResourceID:   t.ID,
		Metadata:     map[string]any{"job_id": t.JobID, "score": result.Score, "code": errcode.OK},
	})
	if s.notifier != nil {
		s.notifier.Fanout(ctx, broadcast.ActionAnalyzed, broadcast.Group([]broadcast.Affected{
			{CandidateID: t.ID, JobID: t.JobID, OwnerID: t.OwnerID},
		}))
	}

	return Analysis{CandidateID: t.ID, Score: result.Score, Summary: result.Summary, AnalyzedAt: now}, nil
}

// Enqueue 校验归属与额度后投递后台分析任务，返回任务 id。
func (s *Service) Enqueue(ctx context.Context, actorID, candidateID uint, correlationID string) (string, error) {
	if s.queue == nil {
		return "", ErrDisabled
	}
	t, err := s.loadTarget(ctx, actorID, candidateID)
	if err != nil {
		return "", err
	}
	quota, err := s.Quota(ctx, t.OwnerID)
	if err != nil {
		return "", err
	}
	if quota.Remaining <= 0 {
		return "", ErrQuotaExhausted
	}

	task, err := tasks.NewCandidateAnalyzeTask(t.ID, actorID, correlationID)
	if err != nil {
		return "", fmt.Errorf("build analyze task: %w", err)
	}
	opts := []asynq.Option{asynq.Timeout(s.opts.MaxDuration + 30*time.Second)}
	if s.opts.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.opts.MaxRetry))
	}
	info, err := s.queue.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue analyze task: %w", err)
	}
	return info.ID, nil
}

// Quota 返回用户额度，不存在时按默认额度创建。
func (s *Service) Quota(ctx context.Context, userID uint) (QuotaView, error) {
	q, err := s.ensureQuota(ctx, userID)
	if err != nil {
		return QuotaView{}, err
	}
	return viewOf(q), nil
}

// SetAllotment 设置用户的总额度，已用量保持不变。
func (s *Service) SetAllotment(ctx context.Context, actorID, userID uint, allotment int) (QuotaView, error) {
	if allotment < 0 {
		return QuotaView{}, fmt.Errorf("%w: allotment must not be negative", candidate.ErrInvalidRequest)
	}
	q, err := s.ensureQuota(ctx, userID)
	if err != nil {
		return QuotaView{}, err
	}
	q.Allotment = allotment
	q.UpdatedAt = s.now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&database.UserQuota{}).
		Where("id = ?", q.ID).
		Updates(map[string]any{"allotment": allotment, "updated_at": q.UpdatedAt}).Error; err != nil {
		return QuotaView{}, fmt.Errorf("update quota: %w", err)
	}
	s.record(ctx, activity.Entry{
		ActorID:      actorID,
		Action:       AuditQuotaUpdated,
		ResourceType: activity.ResourceUser,
		ResourceID:   userID,
		Metadata:     map[string]any{"allotment": allotment},
	})
	return viewOf(q), nil
}

func (s *Service) ensureQuota(ctx context.Context, userID uint) (database.UserQuota, error) {
	var q database.UserQuota
	err := s.db.WithContext(ctx).
		Where(database.UserQuota{UserID: userID}).
		Attrs(database.UserQuota{Allotment: s.opts.DefaultAllotment}).
		FirstOrCreate(&q).Error
	if err != nil {
		return database.UserQuota{}, fmt.Errorf("load quota: %w", err)
	}
	return q, nil
}

func (s *Service) recordFailure(ctx context.Context, actorID uint, t target, code int, temporary bool) {
	s.record(ctx, activity.Entry{
		ActorID:      actorID,
		Action:       AuditAnalyzeFailed,
		ResourceType: activity.ResourceCandidate,
		ResourceID:   t.ID,
		Metadata:     map[string]any{"job_id": t.JobID, "code": code, "temporary": temporary},
	})
}

func (s *Service) record(ctx context.Context, entry activity.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("write activity log failed", slog.Any("error", err))
	}
}
