package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hirelane/internal/activity"
)

// ActivityHandler 返回调用者的审计记录。
type ActivityHandler struct {
	recorder *activity.Recorder
	logger   *slog.Logger
}

// NewActivityHandler 构造 ActivityHandler。
func NewActivityHandler(recorder *activity.Recorder, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{recorder: recorder, logger: logger}
}

type activityResponse struct {
	ID           uint           `json:"id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   uint           `json:"resource_id"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// List 分页返回审计记录（limit、offset）。
func (h *ActivityHandler) List(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	logs, err := h.recorder.List(c.Request.Context(), userID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		loggerFrom(c, h.logger).Error("list activity failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	items := make([]activityResponse, 0, len(logs))
	for _, l := range logs {
		items = append(items, activityResponse{
			ID:           l.ID,
			Action:       l.Action,
			ResourceType: l.ResourceType,
			ResourceID:   l.ResourceID,
			Metadata:     l.Metadata,
			CreatedAt:    l.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
