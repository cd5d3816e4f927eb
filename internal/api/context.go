package api

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"hirelane/internal/api/middleware"
)

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get(middleware.UserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

// idParam 解析路径中的正整数 id。
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func loggerFrom(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if _, ok := c.Get("slogLogger"); ok {
		return middleware.LoggerFromContext(c)
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
