package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hirelane/internal/candidate"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// Unavailable 返回 503，并附带重试提示。
func Unavailable(c *gin.Context, msg string, retryAfter time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	Error(c, http.StatusServiceUnavailable, msg)
}

// batchResponse 是批量操作的统一返回体；Failed 仅在存在失败行时出现。
type batchResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Failed  int  `json:"failed,omitempty"`
}

func writeBatch(c *gin.Context, out candidate.Outcome) {
	c.JSON(http.StatusOK, batchResponse{Success: true, Count: out.Count, Failed: out.Failed})
}
