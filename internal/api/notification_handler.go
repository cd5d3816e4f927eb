package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"hirelane/internal/notify"
)

// NotificationHandler 读取与更新通知偏好。
type NotificationHandler struct {
	notify *notify.Service
	logger *slog.Logger
}

// NewNotificationHandler 构造 NotificationHandler。
func NewNotificationHandler(svc *notify.Service, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notify: svc, logger: logger}
}

// Get 返回通知偏好。
func (h *NotificationHandler) Get(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	prefs, err := h.notify.Preferences(c.Request.Context(), userID)
	if err != nil {
		loggerFrom(c, h.logger).Error("load preferences failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// Update 部分更新通知偏好。
func (h *NotificationHandler) Update(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var patch notify.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	prefs, err := h.notify.Update(c.Request.Context(), userID, patch)
	if err != nil {
		loggerFrom(c, h.logger).Error("update preferences failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, prefs)
}
