package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Middleware 按 scope 与客户端 IP 限流。限流器出错时放行并记录日志。
func Middleware(limiter Limiter, scope string, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			decisionsTotal.WithLabelValues(scope, "error").Inc()
			logger.Error("rate limiter failed, allowing request",
				slog.String("scope", scope),
				slog.Any("error", err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		if !d.Allowed {
			decisionsTotal.WithLabelValues(scope, "rejected").Inc()
			seconds := int(math.Ceil(d.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}

		decisionsTotal.WithLabelValues(scope, "allowed").Inc()
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Next()
	}
}
