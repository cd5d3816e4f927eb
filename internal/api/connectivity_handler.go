package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Probe 检查一个依赖是否可用。
type Probe func(ctx context.Context) error

// ConnectivityHandler 并发探测数据库、Redis 与对象存储。
type ConnectivityHandler struct {
	probes  map[string]Probe
	timeout time.Duration
	logger  *slog.Logger
}

// NewConnectivityHandler 构造 ConnectivityHandler。
func NewConnectivityHandler(probes map[string]Probe, timeout time.Duration, logger *slog.Logger) *ConnectivityHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ConnectivityHandler{probes: probes, timeout: timeout, logger: logger}
}

type probeResult struct {
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Check 全部依赖可用时返回 200，否则返回 503。
func (h *ConnectivityHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]probeResult, len(h.probes))
		healthy = true
	)
	for name, probe := range h.probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()
			start := time.Now()
			err := probe(ctx)
			res := probeResult{OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				res.Error = err.Error()
				loggerFrom(c, h.logger).Warn("connectivity probe failed", slog.String("dependency", name), slog.Any("error", err))
			}
			mu.Lock()
			results[name] = res
			if err != nil {
				healthy = false
			}
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ok": healthy, "checks": results})
}
