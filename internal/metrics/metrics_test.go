package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func TestTaskResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{errors.New("boom"), "retry"},
		{fmt.Errorf("bad payload: %w", asynq.SkipRetry), "skip"},
	}
	for _, tt := range tests {
		if got := taskResult(tt.err); got != tt.want {
			t.Errorf("taskResult(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestGinMiddlewareExposesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware("/metrics"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `hirelane_http_requests_total{code="200",method="GET",route="/ping"}`) {
		t.Error("request counter missing from /metrics output")
	}
	if !strings.Contains(body, `route="unmatched"`) {
		t.Error("unmatched routes must share one label value")
	}
	if strings.Contains(body, `route="/metrics"`) {
		t.Error("skipped route must not be recorded")
	}
}

func TestAsynqMetricsMiddlewarePassesThrough(t *testing.T) {
	want := errors.New("boom")
	h := AsynqMetricsMiddleware()(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return want }))
	if err := h.ProcessTask(context.Background(), asynq.NewTask("x", nil)); !errors.Is(err, want) {
		t.Errorf("err = %v", err)
	}
}
