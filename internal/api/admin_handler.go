package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hirelane/internal/analysis"
	"hirelane/internal/candidate"
	"hirelane/internal/database"
)

// AdminHandler 提供仅管理员可用的用户与职位管理。
type AdminHandler struct {
	db       *gorm.DB
	jobs     *JobHandler
	analysis *analysis.Service
	logger   *slog.Logger
}

// NewAdminHandler 构造 AdminHandler；删除职位复用 JobHandler 的级联逻辑。
func NewAdminHandler(db *gorm.DB, jobs *JobHandler, analysisSvc *analysis.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{db: db, jobs: jobs, analysis: analysisSvc, logger: logger}
}

type adminUserResponse struct {
	ID        uint               `json:"id"`
	Username  string             `json:"username"`
	IsAdmin   bool               `json:"is_admin"`
	CreatedAt time.Time          `json:"created_at"`
	Quota     analysis.QuotaView `json:"quota"`
}

// Users 分页列出全部用户及其额度。
func (h *AdminHandler) Users(c *gin.Context) {
	ctx := c.Request.Context()
	limit := clampLimit(queryInt(c, "limit", 50))
	offset := max(queryInt(c, "offset", 0), 0)

	var users []database.User
	if err := h.db.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		loggerFrom(c, h.logger).Error("admin list users failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]adminUserResponse, 0, len(users))
	for _, u := range users {
		quota, err := h.analysis.Quota(ctx, u.ID)
		if err != nil {
			loggerFrom(c, h.logger).Error("admin load quota failed", slog.Uint64("user_id", uint64(u.ID)), slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		items = append(items, adminUserResponse{
			ID:        u.ID,
			Username:  u.Username,
			IsAdmin:   u.IsAdmin,
			CreatedAt: u.CreatedAt,
			Quota:     quota,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": items})
}

type quotaRequest struct {
	Allotment *int `json:"allotment" binding:"required"`
}

// SetQuota 设置用户的分析总额度。
func (h *AdminHandler) SetQuota(c *gin.Context) {
	actorID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	userID, ok := idParam(c, "id")
	if !ok {
		BadRequest(c, "invalid user id")
		return
	}
	var req quotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		loggerFrom(c, h.logger).Error("admin load user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	quota, err := h.analysis.SetAllotment(ctx, actorID, user.ID, *req.Allotment)
	if err != nil {
		if errors.Is(err, candidate.ErrInvalidRequest) {
			BadRequest(c, err.Error())
			return
		}
		loggerFrom(c, h.logger).Error("admin set quota failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, quota)
}

type adminJobResponse struct {
	jobResponse
	OwnerID       uint   `json:"owner_id"`
	OwnerUsername string `json:"owner_username"`
}

// Jobs 分页列出全部职位。
func (h *AdminHandler) Jobs(c *gin.Context) {
	limit := clampLimit(queryInt(c, "limit", 50))
	offset := max(queryInt(c, "offset", 0), 0)

	var jobs []database.Job
	if err := h.db.WithContext(c.Request.Context()).
		Preload("User").
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&jobs).Error; err != nil {
		loggerFrom(c, h.logger).Error("admin list jobs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	items := make([]adminJobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, adminJobResponse{jobResponse: jobView(j), OwnerID: j.UserID, OwnerUsername: j.User.Username})
	}
	c.JSON(http.StatusOK, gin.H{"jobs": items})
}

// DeleteJob 删除任意职位及其候选人。
func (h *AdminHandler) DeleteJob(c *gin.Context) {
	actorID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		BadRequest(c, "invalid job id")
		return
	}
	ctx := c.Request.Context()
	job, err := findJob(ctx, h.db, id)
	if err != nil {
		if errors.Is(err, errJobNotFound) {
			NotFound(c, "job not found")
			return
		}
		loggerFrom(c, h.logger).Error("admin load job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	count, err := h.jobs.deleteJob(ctx, actorID, job)
	if err != nil {
		loggerFrom(c, h.logger).Error("admin delete job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	}
	return limit
}
