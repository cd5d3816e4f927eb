// Package candidate 实现候选人的批量变更流水线：
// 校验 → 关联查询 → 归属校验 → 批量写入 → 审计 → 尽力而为的广播。
package candidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hirelane/internal/activity"
	"hirelane/internal/broadcast"
	"hirelane/internal/database"
)

// MaxBatchSize 是单次批量请求允许的最大 id 数。
const MaxBatchSize = 500

// 审计动作名与广播动作保持一致。
const (
	AuditStatusChanged = broadcast.ActionStatusChanged
	AuditTagsChanged   = broadcast.ActionTagsChanged
	AuditDeleted       = broadcast.ActionDeleted
	AuditCreated       = broadcast.ActionCreated
)

// ObjectRemover 删除简历对象。
type ObjectRemover interface {
	DeleteObject(ctx context.Context, key string) error
}

// AuditRecorder 写入审计记录。
type AuditRecorder interface {
	Record(ctx context.Context, entries ...activity.Entry) error
}

// Notifier 负责广播扇出，返回值允许调用方忽略。
type Notifier interface {
	Fanout(ctx context.Context, action string, changes []broadcast.Change) broadcast.Result
}

// Outcome 是批量操作的结果。Failed 为写入失败的行数，不会导致整体失败。
type Outcome struct {
	Count     int
	Failed    int
	Broadcast broadcast.Result
}

// ownedRow 是候选人与所属职位 Owner 的关联查询结果。
type ownedRow struct {
	ID        uint
	JobID     uint
	OwnerID   uint
	ResumeKey string
	Tags      datatypes.JSONSlice[database.Tag]
}

func (r ownedRow) affected() broadcast.Affected {
	return broadcast.Affected{CandidateID: r.ID, JobID: r.JobID, OwnerID: r.OwnerID}
}

// Service 封装候选人的查询与变更。
type Service struct {
	db       *gorm.DB
	storage  ObjectRemover
	audit    AuditRecorder
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService 构造 Service；storage 与 notifier 可以为 nil。
func NewService(db *gorm.DB, storage ObjectRemover, audit AuditRecorder, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		storage:  storage,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// BulkUpdateStatus 将一批候选人更新为同一状态。
func (s *Service) BulkUpdateStatus(ctx context.Context, actorID uint, ids []uint, status string) (Outcome, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return Outcome{}, err
	}
	if !ValidStatus(status) {
		return Outcome{}, invalid("status %q is not allowed", status)
	}

	rows, err := s.loadOwned(ctx, actorID, ids)
	if err != nil {
		return Outcome{}, err
	}

	// RETURNING 给出实际写入的行，并发删除的行不再审计和广播。
	var updated []database.Candidate
	res := s.db.WithContext(ctx).
		Model(&updated).
		Clauses(returningID).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": status, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return Outcome{}, fmt.Errorf("update candidate status: %w", res.Error)
	}
	rows = keepRows(rows, updated)

	out := Outcome{Count: len(rows)}
	out.Failed = len(ids) - out.Count
	if out.Failed > 0 {
		s.logger.Warn("bulk status update partially applied",
			slog.Int("requested", len(ids)),
			slog.Int("updated", out.Count),
		)
	}

	s.record(ctx, entriesFor(actorID, AuditStatusChanged, rows, map[string]any{"status": status}))
	out.Broadcast = s.fanout(ctx, broadcast.ActionStatusChanged, rows)
	return out, nil
}

// BulkUpdateTags 对一批候选人执行 add/remove/replace 标签操作。
// 每行的新标签集合不同，因此逐行写入；单行失败计入 Failed。
func (s *Service) BulkUpdateTags(ctx context.Context, actorID uint, ids []uint, action string, tags []database.Tag) (Outcome, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return Outcome{}, err
	}
	tags, err = NormalizeTags(action, tags)
	if err != nil {
		return Outcome{}, err
	}

	rows, err := s.loadOwned(ctx, actorID, ids)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	written := make([]ownedRow, 0, len(rows))
	now := s.now().UTC()
	for _, row := range rows {
		next := ApplyTags(row.Tags, action, tags)
		if sameTags(row.Tags, next) {
			out.Count++
			written = append(written, row)
			continue
		}
		if err := s.db.WithContext(ctx).
			Model(&database.Candidate{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{"tags": datatypes.NewJSONSlice(next), "updated_at": now}).Error; err != nil {
			out.Failed++
			s.logger.Error("update candidate tags failed",
				slog.Uint64("candidate_id", uint64(row.ID)),
				slog.Any("error", err),
			)
			continue
		}
		out.Count++
		written = append(written, row)
	}

	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	s.record(ctx, entriesFor(actorID, AuditTagsChanged, written, map[string]any{"action": action, "tags": names}))
	out.Broadcast = s.fanout(ctx, broadcast.ActionTagsChanged, written)
	return out, nil
}

// UpdateTags 是单个候选人的标签操作，返回更新后的标签。
func (s *Service) UpdateTags(ctx context.Context, actorID, id uint, action string, tags []database.Tag) ([]database.Tag, error) {
	out, err := s.BulkUpdateTags(ctx, actorID, []uint{id}, action, tags)
	if err != nil {
		return nil, err
	}
	if out.Failed > 0 {
		return nil, fmt.Errorf("update tags of candidate %d failed", id)
	}
	var c database.Candidate
	if err := s.db.WithContext(ctx).Select("id", "tags").First(&c, id).Error; err != nil {
		return nil, fmt.Errorf("reload candidate tags: %w", err)
	}
	return c.Tags, nil
}

// BulkDelete 删除一批候选人。简历文件先尽力删除，失败不会阻止行删除。
func (s *Service) BulkDelete(ctx context.Context, actorID uint, ids []uint) (Outcome, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return Outcome{}, err
	}
	rows, err := s.loadOwned(ctx, actorID, ids)
	if err != nil {
		return Outcome{}, err
	}
	return s.deleteRows(ctx, actorID, rows)
}

// DeleteForJob 删除某个职位下的全部候选人；调用方负责职位级别的授权。
func (s *Service) DeleteForJob(ctx context.Context, actorID, jobID uint) (Outcome, error) {
	var rows []ownedRow
	if err := s.ownedQuery(ctx).Where("candidates.job_id = ?", jobID).Scan(&rows).Error; err != nil {
		return Outcome{}, fmt.Errorf("load job candidates: %w", err)
	}
	if len(rows) == 0 {
		return Outcome{}, nil
	}
	return s.deleteRows(ctx, actorID, rows)
}

func (s *Service) deleteRows(ctx context.Context, actorID uint, rows []ownedRow) (Outcome, error) {
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		s.removeResume(ctx, row)
	}

	var deleted []database.Candidate
	res := s.db.WithContext(ctx).Clauses(returningID).Where("id IN ?", ids).Delete(&deleted)
	if res.Error != nil {
		return Outcome{}, fmt.Errorf("delete candidates: %w", res.Error)
	}
	rows = keepRows(rows, deleted)

	out := Outcome{Count: len(rows)}
	out.Failed = len(ids) - out.Count
	if out.Failed > 0 {
		s.logger.Warn("bulk delete partially applied",
			slog.Int("requested", len(ids)),
			slog.Int("deleted", out.Count),
		)
	}
	s.record(ctx, entriesFor(actorID, AuditDeleted, rows, nil))
	out.Broadcast = s.fanout(ctx, broadcast.ActionDeleted, rows)
	return out, nil
}

var returningID = clause.Returning{Columns: []clause.Column{{Name: "id"}}}

// keepRows 只保留 written 中出现的行，顺序与 rows 一致。
func keepRows(rows []ownedRow, written []database.Candidate) []ownedRow {
	set := make(map[uint]struct{}, len(written))
	for _, c := range written {
		set[c.ID] = struct{}{}
	}
	kept := make([]ownedRow, 0, len(rows))
	for _, row := range rows {
		if _, ok := set[row.ID]; ok {
			kept = append(kept, row)
		}
	}
	return kept
}

func (s *Service) removeResume(ctx context.Context, row ownedRow) {
	if s.storage == nil || row.ResumeKey == "" {
		return
	}
	if err := s.storage.DeleteObject(ctx, row.ResumeKey); err != nil {
		s.logger.Warn("delete resume object failed, deleting row anyway",
			slog.Uint64("candidate_id", uint64(row.ID)),
			slog.String("key", row.ResumeKey),
			slog.Any("error", err),
		)
	}
}

// Get 返回调用者名下的单个候选人。
func (s *Service) Get(ctx context.Context, actorID, id uint) (database.Candidate, error) {
	if _, err := s.loadOwned(ctx, actorID, []uint{id}); err != nil {
		return database.Candidate{}, err
	}
	var c database.Candidate
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Candidate{}, ErrNotFound
		}
		return database.Candidate{}, fmt.Errorf("load candidate: %w", err)
	}
	return c, nil
}

// ListFilter 过滤职位下的候选人列表。
type ListFilter struct {
	Status string
	Tag    string
}

// ListForJob 列出某职位的候选人；调用方负责职位授权。
func (s *Service) ListForJob(ctx context.Context, jobID uint, filter ListFilter) ([]database.Candidate, error) {
	query := s.db.WithContext(ctx).Where("job_id = ?", jobID)
	if filter.Status != "" {
		if !ValidStatus(filter.Status) {
			return nil, invalid("status %q is not allowed", filter.Status)
		}
		query = query.Where("status = ?", filter.Status)
	}
	var candidates []database.Candidate
	if err := query.Order("created_at DESC, id DESC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if filter.Tag == "" {
		return candidates, nil
	}
	// 标签存放在 JSON 列中，按名称过滤在内存里完成以兼容不同数据库。
	filtered := candidates[:0]
	for _, c := range candidates {
		if hasTag(c.Tags, filter.Tag) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// ApplyInput 是一次公开投递。
type ApplyInput struct {
	Job               database.Job
	Name              string
	Email             string
	ResumeKey         string
	ResumeContentType string
}

// Apply 创建候选人并通知职位 Owner。
func (s *Service) Apply(ctx context.Context, in ApplyInput) (database.Candidate, error) {
	c := database.Candidate{
		JobID:             in.Job.ID,
		UserID:            in.Job.UserID,
		Name:              in.Name,
		Email:             in.Email,
		ResumeKey:         in.ResumeKey,
		ResumeContentType: in.ResumeContentType,
		Status:            StatusNew,
		Tags:              datatypes.NewJSONSlice([]database.Tag{}),
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return database.Candidate{}, fmt.Errorf("create candidate: %w", err)
	}
	row := ownedRow{ID: c.ID, JobID: c.JobID, OwnerID: in.Job.UserID}
	s.record(ctx, entriesFor(0, AuditCreated, []ownedRow{row}, nil))
	s.fanout(ctx, broadcast.ActionCreated, []ownedRow{row})
	return c, nil
}

// ownedQuery 构造候选人与未删除职位的关联查询。
func (s *Service) ownedQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("candidates").
		Select("candidates.id, candidates.job_id, candidates.resume_key, COALESCE(candidates.tags, '[]') AS tags, jobs.user_id AS owner_id").
		Joins("JOIN jobs ON jobs.id = candidates.job_id AND jobs.deleted_at IS NULL")
}

// loadOwned 读取目标候选人并校验归属：任意一条不属于 actor 则整批拒绝，
// 任意一条不存在则返回 ErrNotFound。
func (s *Service) loadOwned(ctx context.Context, actorID uint, ids []uint) ([]ownedRow, error) {
	var rows []ownedRow
	if err := s.ownedQuery(ctx).
		Where("candidates.id IN ?", ids).
		Order("candidates.id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	for _, row := range rows {
		if row.OwnerID != actorID {
			return nil, ErrForbidden
		}
	}
	if len(rows) != len(ids) {
		return nil, ErrNotFound
	}
	return rows, nil
}

func (s *Service) record(ctx context.Context, entries []activity.Entry) {
	if s.audit == nil || len(entries) == 0 {
		return
	}
	if err := s.audit.Record(ctx, entries...); err != nil {
		s.logger.Error("write activity log failed", slog.Any("error", err))
	}
}

func (s *Service) fanout(ctx context.Context, action string, rows []ownedRow) broadcast.Result {
	if s.notifier == nil || len(rows) == 0 {
		return broadcast.Result{}
	}
	affected := make([]broadcast.Affected, 0, len(rows))
	for _, row := range rows {
		affected = append(affected, row.affected())
	}
	return s.notifier.Fanout(ctx, action, broadcast.Group(affected))
}

func entriesFor(actorID uint, action string, rows []ownedRow, metadata map[string]any) []activity.Entry {
	entries := make([]activity.Entry, 0, len(rows))
	for _, row := range rows {
		meta := map[string]any{"job_id": row.JobID}
		for k, v := range metadata {
			meta[k] = v
		}
		entries = append(entries, activity.Entry{
			ActorID:      actorID,
			Action:       action,
			ResourceType: activity.ResourceCandidate,
			ResourceID:   row.ID,
			Metadata:     meta,
		})
	}
	return entries
}

// normalizeIDs 去重并排序；空列表、0 值与超限都视为非法。
func normalizeIDs(ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, invalid("candidateIds must not be empty")
	}
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			return nil, invalid("candidateIds must be positive")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) > MaxBatchSize {
		return nil, invalid("at most %d candidateIds per request", MaxBatchSize)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
