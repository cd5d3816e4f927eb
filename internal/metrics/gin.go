// Package metrics 定义 API 与 worker 的 Prometheus 指标。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 未匹配任何路由的请求统一归到这个 path 标签，避免扫描器撑爆基数。
const unmatchedPath = "unmatched"

var (
	httpLabels = []string{"method", "route", "code"}

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hirelane",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "按路由统计的请求耗时（秒）。",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, httpLabels)

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hirelane",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "按路由与状态码统计的请求数。",
	}, httpLabels)

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hirelane",
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "正在处理的请求数。",
	})
)

// GinMiddleware 记录请求数、耗时与并发数；skip 中的路由（如 /metrics 自身）不计入。
func GinMiddleware(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			c.Next()
			return
		}

		httpInFlight.Inc()
		began := time.Now()
		c.Next()
		httpInFlight.Dec()

		if route == "" {
			route = unmatchedPath
		}
		values := []string{c.Request.Method, route, strconv.Itoa(c.Writer.Status())}
		httpLatency.WithLabelValues(values...).Observe(time.Since(began).Seconds())
		httpRequests.WithLabelValues(values...).Inc()
	}
}

// Handler 暴露默认注册表。
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
