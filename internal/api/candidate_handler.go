package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"hirelane/internal/candidate"
	"hirelane/internal/database"
)

// Presigner 生成简历的限时下载链接。
type Presigner interface {
	GeneratePresignedURL(ctx context.Context, key string, duration time.Duration, params map[string]string) (string, error)
}

// CandidateHandler 处理候选人查询与批量变更。
type CandidateHandler struct {
	candidates *candidate.Service
	storage    Presigner
	logger     *slog.Logger
}

// NewCandidateHandler 构造 CandidateHandler。
func NewCandidateHandler(candidates *candidate.Service, storage Presigner, logger *slog.Logger) *CandidateHandler {
	return &CandidateHandler{candidates: candidates, storage: storage, logger: logger}
}

type bulkStatusRequest struct {
	CandidateIDs []uint `json:"candidateIds"`
	Status       string `json:"status"`
}

type bulkTagsRequest struct {
	CandidateIDs []uint         `json:"candidateIds"`
	Action       string         `json:"action"`
	Tags         []database.Tag `json:"tags"`
}

type bulkDeleteRequest struct {
	CandidateIDs []uint `json:"candidateIds"`
}

type tagsRequest struct {
	Action string         `json:"action"`
	Tags   []database.Tag `json:"tags"`
}

// BulkStatus 批量更新状态。
func (h *CandidateHandler) BulkStatus(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req bulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	out, err := h.candidates.BulkUpdateStatus(c.Request.Context(), userID, req.CandidateIDs, req.Status)
	if err != nil {
		h.writeError(c, "bulk status update failed", err)
		return
	}
	writeBatch(c, out)
}

// BulkTags 批量增删改标签。
func (h *CandidateHandler) BulkTags(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req bulkTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	out, err := h.candidates.BulkUpdateTags(c.Request.Context(), userID, req.CandidateIDs, req.Action, req.Tags)
	if err != nil {
		h.writeError(c, "bulk tag update failed", err)
		return
	}
	writeBatch(c, out)
}

// BulkDelete 批量删除候选人。
func (h *CandidateHandler) BulkDelete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	out, err := h.candidates.BulkDelete(c.Request.Context(), userID, req.CandidateIDs)
	if err != nil {
		h.writeError(c, "bulk delete failed", err)
		return
	}
	writeBatch(c, out)
}

// Get 返回单个候选人。
func (h *CandidateHandler) Get(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		BadRequest(c, "invalid candidate id")
		return
	}

	cand, err := h.candidates.Get(c.Request.Context(), userID, id)
	if err != nil {
		h.writeError(c, "get candidate failed", err)
		return
	}
	c.JSON(http.StatusOK, candidateView(cand))
}

// Delete 删除单个候选人。
func (h *CandidateHandler) Delete(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		BadRequest(c, "invalid candidate id")
		return
	}

	out, err := h.candidates.BulkDelete(c.Request.Context(), userID, []uint{id})
	if err != nil {
		h.writeError(c, "delete candidate failed", err)
		return
	}
	writeBatch(c, out)
}

// UpdateTags 更新单个候选人的标签。
func (h *CandidateHandler) UpdateTags(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		BadRequest(c, "invalid candidate id")
		return
	}
	var req tagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	tags, err := h.candidates.UpdateTags(c.Request.Context(), userID, id, req.Action, req.Tags)
	if err != nil {
		h.writeError(c, "update tags failed", err)
		return
	}
	if tags == nil {
		tags = []database.Tag{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tags": tags})
}

// ListTags 返回调用者使用过的全部标签。
func (h *CandidateHandler) ListTags(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	tags, err := h.candidates.ListTags(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, "list tags failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// ResumeURL 返回简历的预签名下载链接。
func (h *CandidateHandler) ResumeURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		BadRequest(c, "invalid candidate id")
		return
	}

	cand, err := h.candidates.Get(c.Request.Context(), userID, id)
	if err != nil {
		h.writeError(c, "get candidate failed", err)
		return
	}
	if cand.ResumeKey == "" {
		NotFound(c, "resume not found")
		return
	}

	params := map[string]string{
		"response-content-disposition": `attachment; filename="` + path.Base(cand.ResumeKey) + `"`,
	}
	url, err := h.storage.GeneratePresignedURL(c.Request.Context(), cand.ResumeKey, 15*time.Minute, params)
	if err != nil {
		loggerFrom(c, h.logger).Error("generate resume url failed", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// DashboardStats 返回调用者名下全部候选人的聚合计数。
func (h *CandidateHandler) DashboardStats(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	stats, err := h.candidates.Stats(c.Request.Context(), candidate.StatsFilter{OwnerID: userID})
	if err != nil {
		h.writeError(c, "dashboard stats failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *CandidateHandler) writeError(c *gin.Context, msg string, err error) {
	writeCandidateError(c, loggerFrom(c, h.logger), msg, err)
}

// writeCandidateError 将候选人领域错误映射为 HTTP 状态码。
func writeCandidateError(c *gin.Context, log *slog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, candidate.ErrInvalidRequest):
		BadRequest(c, err.Error())
	case errors.Is(err, candidate.ErrForbidden):
		Forbidden(c, "forbidden")
	case errors.Is(err, candidate.ErrNotFound):
		NotFound(c, "candidate not found")
	default:
		log.Error(msg, slog.Any("error", err))
		Internal(c, "internal error")
	}
}

type candidateResponse struct {
	ID         uint           `json:"id"`
	JobID      uint           `json:"job_id"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Status     string         `json:"status"`
	AIScore    *int           `json:"ai_score"`
	AISummary  string         `json:"ai_summary,omitempty"`
	AnalyzedAt *time.Time     `json:"analyzed_at,omitempty"`
	Tags       []database.Tag `json:"tags"`
	HasResume  bool           `json:"has_resume"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func candidateView(c database.Candidate) candidateResponse {
	tags := []database.Tag(c.Tags)
	if tags == nil {
		tags = []database.Tag{}
	}
	return candidateResponse{
		ID:         c.ID,
		JobID:      c.JobID,
		Name:       c.Name,
		Email:      c.Email,
		Status:     c.Status,
		AIScore:    c.AIScore,
		AISummary:  c.AISummary,
		AnalyzedAt: c.AnalyzedAt,
		Tags:       tags,
		HasResume:  c.ResumeKey != "",
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}
