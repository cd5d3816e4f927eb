package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hirelane/internal/activity"
	"hirelane/internal/candidate"
	"hirelane/internal/database"
	"hirelane/internal/export"
	"hirelane/internal/storage"
)

// 职位相关的审计动作。
const (
	auditJobCreated = "job.created"
	auditJobUpdated = "job.updated"
	auditJobDeleted = "job.deleted"
)

var errJobNotFound = errors.New("job not found")

// JobHandler 处理职位的增删改查与导出。
type JobHandler struct {
	db         *gorm.DB
	candidates *candidate.Service
	audit      candidate.AuditRecorder
	sweeper    PrefixSweeper
	logger     *slog.Logger
}

// PrefixSweeper 按前缀清理对象，用于删除职位后回收遗留的简历文件。
type PrefixSweeper interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// NewJobHandler 构造 JobHandler；sweeper 可以为空。
func NewJobHandler(db *gorm.DB, candidates *candidate.Service, audit candidate.AuditRecorder, sweeper PrefixSweeper, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{db: db, candidates: candidates, audit: audit, sweeper: sweeper, logger: logger}
}

type jobRequest struct {
	Title       string  `json:"title" binding:"required,max=255"`
	Description string  `json:"description" binding:"max=20000"`
	Status      *string `json:"status"`
}

type jobPatchRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=255"`
	Description *string `json:"description" binding:"omitempty,max=20000"`
	Status      *string `json:"status"`
}

type jobResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func jobView(j database.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		Title:       j.Title,
		Description: j.Description,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func validJobStatus(status string) bool {
	switch status {
	case database.JobStatusOpen, database.JobStatusPaused, database.JobStatusClosed:
		return true
	}
	return false
}

// List 列出调用者的职位。
func (h *JobHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	query := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		if !validJobStatus(status) {
			BadRequest(c, "invalid job status")
			return
		}
		query = query.Where("status = ?", status)
	}
	var jobs []database.Job
	if err := query.Order("created_at DESC, id DESC").Find(&jobs).Error; err != nil {
		loggerFrom(c, h.logger).Error("list jobs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, jobView(j))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": items})
}

// Create 创建职位，默认状态为 OPEN。
func (h *JobHandler) Create(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	job := database.Job{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Status:      database.JobStatusOpen,
		UserID:      userID,
	}
	if req.Status != nil {
		if !validJobStatus(*req.Status) {
			BadRequest(c, "invalid job status")
			return
		}
		job.Status = *req.Status
	}
	if job.Title == "" {
		BadRequest(c, "title is required")
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Create(&job).Error; err != nil {
		loggerFrom(c, h.logger).Error("create job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.record(ctx, c, userID, auditJobCreated, job.ID, map[string]any{"title": job.Title})
	c.JSON(http.StatusCreated, jobView(job))
}

// Get 返回单个职位。
func (h *JobHandler) Get(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, jobView(job))
}

// Update 部分更新职位。
func (h *JobHandler) Update(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	var req jobPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			BadRequest(c, "title must not be empty")
			return
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		if !validJobStatus(*req.Status) {
			BadRequest(c, "invalid job status")
			return
		}
		updates["status"] = *req.Status
	}
	if len(updates) == 0 {
		BadRequest(c, "nothing to update")
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(&job).Updates(updates).Error; err != nil {
		loggerFrom(c, h.logger).Error("update job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).First(&job, job.ID).Error; err != nil {
		loggerFrom(c, h.logger).Error("reload job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.record(ctx, c, job.UserID, auditJobUpdated, job.ID, updates)
	c.JSON(http.StatusOK, jobView(job))
}

// Delete 删除职位及其全部候选人。
func (h *JobHandler) Delete(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	count, err := h.deleteJob(c.Request.Context(), job.UserID, job)
	if err != nil {
		loggerFrom(c, h.logger).Error("delete job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// Stats 返回职位下候选人的聚合计数。
func (h *JobHandler) Stats(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	stats, err := h.candidates.Stats(c.Request.Context(), candidate.StatsFilter{OwnerID: job.UserID, JobID: job.ID})
	if err != nil {
		loggerFrom(c, h.logger).Error("job stats failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Candidates 列出职位下的候选人，支持 status 与 tag 过滤。
func (h *JobHandler) Candidates(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	list, err := h.candidates.ListForJob(c.Request.Context(), job.ID, candidate.ListFilter{
		Status: c.Query("status"),
		Tag:    c.Query("tag"),
	})
	if err != nil {
		writeCandidateError(c, loggerFrom(c, h.logger), "list candidates failed", err)
		return
	}
	items := make([]candidateResponse, 0, len(list))
	for _, cand := range list {
		items = append(items, candidateView(cand))
	}
	c.JSON(http.StatusOK, gin.H{"candidates": items})
}

// Export 以 XLSX 导出职位下的候选人。
func (h *JobHandler) Export(c *gin.Context) {
	job, ok := h.ownedJob(c)
	if !ok {
		return
	}
	list, err := h.candidates.ListForJob(c.Request.Context(), job.ID, candidate.ListFilter{})
	if err != nil {
		writeCandidateError(c, loggerFrom(c, h.logger), "export candidates failed", err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(job)))
	c.Status(http.StatusOK)
	if err := export.WriteCandidates(c.Writer, job, list); err != nil {
		loggerFrom(c, h.logger).Error("write export failed", slog.Any("error", err))
	}
}

// ownedJob 读取路径中的职位并校验归属；失败时已写出响应。
func (h *JobHandler) ownedJob(c *gin.Context) (database.Job, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return database.Job{}, false
	}
	id, ok := idParam(c, "id")
	if !ok {
		BadRequest(c, "invalid job id")
		return database.Job{}, false
	}
	job, err := findJob(c.Request.Context(), h.db, id)
	if err != nil {
		if errors.Is(err, errJobNotFound) {
			NotFound(c, "job not found")
			return database.Job{}, false
		}
		loggerFrom(c, h.logger).Error("load job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return database.Job{}, false
	}
	if job.UserID != userID {
		Forbidden(c, "forbidden")
		return database.Job{}, false
	}
	return job, true
}

// deleteJob 先删除候选人（含简历文件），再软删除职位并清理该职位的对象前缀。
func (h *JobHandler) deleteJob(ctx context.Context, actorID uint, job database.Job) (int, error) {
	out, err := h.candidates.DeleteForJob(ctx, actorID, job.ID)
	if err != nil {
		return 0, err
	}
	if err := h.db.WithContext(ctx).Delete(&job).Error; err != nil {
		return 0, fmt.Errorf("delete job: %w", err)
	}
	if h.sweeper != nil {
		// 上传成功但入库失败的文件只能靠前缀清理。
		if err := h.sweeper.DeletePrefix(ctx, storage.ResumePrefix(job.UserID, job.ID)); err != nil {
			h.logger.Warn("sweep job resumes failed", slog.Uint64("job_id", uint64(job.ID)), slog.Any("error", err))
		}
	}
	if h.audit != nil {
		if err := h.audit.Record(ctx, activity.Entry{
			ActorID:      actorID,
			Action:       auditJobDeleted,
			ResourceType: activity.ResourceJob,
			ResourceID:   job.ID,
			Metadata:     map[string]any{"owner_id": job.UserID, "candidates": out.Count},
		}); err != nil {
			h.logger.Error("write activity log failed", slog.Any("error", err))
		}
	}
	return out.Count, nil
}

func (h *JobHandler) record(ctx context.Context, c *gin.Context, actorID uint, action string, jobID uint, metadata map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, activity.Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: activity.ResourceJob,
		ResourceID:   jobID,
		Metadata:     metadata,
	}); err != nil {
		loggerFrom(c, h.logger).Error("write activity log failed", slog.Any("error", err))
	}
}

func findJob(ctx context.Context, db *gorm.DB, id uint) (database.Job, error) {
	var job database.Job
	if err := db.WithContext(ctx).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Job{}, errJobNotFound
		}
		return database.Job{}, fmt.Errorf("load job: %w", err)
	}
	return job, nil
}
