package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"hirelane/internal/analysis"
	"hirelane/internal/api/middleware"
	"hirelane/internal/errcode"
)

// AnalysisHandler 处理 AI 简历分析与额度查询。
type AnalysisHandler struct {
	analysis *analysis.Service
	logger   *slog.Logger
}

// NewAnalysisHandler 构造 AnalysisHandler。
func NewAnalysisHandler(svc *analysis.Service, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysis: svc, logger: logger}
}

// Analyze 同步分析一份简历。
func (h *AnalysisHandler) Analyze(c *gin.Context) {
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

	result, err := h.analysis.Analyze(c.Request.Context(), userID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": result})
}

// Enqueue 将分析放入后台队列。
func (h *AnalysisHandler) Enqueue(c *gin.Context) {
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

	taskID, err := h.analysis.Enqueue(c.Request.Context(), userID, id, middleware.GetCorrelationID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "analysis request accepted",
		"task_id": taskID,
	})
}

// Quota 返回调用者的分析额度。
func (h *AnalysisHandler) Quota(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	quota, err := h.analysis.Quota(c.Request.Context(), userID)
	if err != nil {
		loggerFrom(c, h.logger).Error("load quota failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, quota)
}

func (h *AnalysisHandler) writeError(c *gin.Context, err error) {
	log := loggerFrom(c, h.logger)
	var aiErr *analysis.Error
	switch {
	case errors.Is(err, analysis.ErrQuotaExhausted):
		c.JSON(http.StatusForbidden, gin.H{"error": "analysis quota exhausted", "code": errcode.QuotaExhausted})
	case errors.Is(err, analysis.ErrResumeMissing):
		log.Warn("resume missing for analysis", slog.Any("error", err))
		c.JSON(http.StatusNotFound, gin.H{"error": "resume not found", "code": errcode.ResumeMissing})
	case errors.Is(err, analysis.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis is not configured", "isTemporary": false})
	case errors.As(err, &aiErr):
		if aiErr.Temporary {
			log.Warn("analysis upstream busy", slog.Any("error", err))
			c.Header("Retry-After", "30")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":       "the AI service is busy, please retry shortly",
				"isTemporary": true,
				"code":        errcode.UpstreamBusy,
			})
			return
		}
		log.Error("analysis failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":       "analysis failed",
			"isTemporary": false,
			"code":        errcode.SystemError,
		})
	default:
		writeCandidateError(c, log, "analysis failed", err)
	}
}
