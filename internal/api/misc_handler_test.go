package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"hirelane/internal/database/dbtest"
)

func TestConnectivityCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		probes map[string]Probe
		want   int
	}{
		{"all healthy", map[string]Probe{"database": ok, "redis": ok, "storage": ok}, http.StatusOK},
		{"redis down", map[string]Probe{"database": ok, "redis": fail, "storage": ok}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewConnectivityHandler(tt.probes, time.Second, discardLogger())
			r := gin.New()
			r.GET("/connectivity", h.Check)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/connectivity", nil))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			var body struct {
				OK     bool                   `json:"ok"`
				Checks map[string]probeResult `json:"checks"`
			}
			decode(t, w, &body)
			if len(body.Checks) != 3 || body.OK != (tt.want == http.StatusOK) {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestConnectivityEndpoint_WithoutRedis(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/v1/connectivity", nil, env.token(t, env.owner))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body struct {
		Checks map[string]probeResult `json:"checks"`
	}
	decode(t, w, &body)
	if !body.Checks["database"].OK || !body.Checks["storage"].OK || body.Checks["redis"].OK {
		t.Errorf("checks = %+v", body.Checks)
	}
}

func TestNotificationPreferencesEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.owner)

	w := env.do(t, http.MethodGet, "/v1/notifications/preferences", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var prefs struct {
		Browser bool `json:"browser_enabled"`
		Sound   bool `json:"sound_enabled"`
	}
	decode(t, w, &prefs)
	if !prefs.Browser || prefs.Sound {
		t.Errorf("defaults = %+v", prefs)
	}

	w = env.do(t, http.MethodPut, "/v1/notifications/preferences", map[string]bool{"sound_enabled": true}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/v1/notifications/preferences", nil, token)
	decode(t, w, &prefs)
	if !prefs.Browser || !prefs.Sound {
		t.Errorf("after update = %+v", prefs)
	}
}

func TestActivityEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.owner)
	job := dbtest.SeedJob(t, env.db, env.owner.ID, "backend")
	a := dbtest.SeedCandidate(t, env.db, job, "ada")

	w := env.do(t, http.MethodPost, "/v1/candidates/bulk/status",
		map[string]any{"candidateIds": []uint{a.ID}, "status": "INTERVIEW"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("bulk status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/v1/activity?limit=10", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("activity = %d", w.Code)
	}
	var body struct {
		Items []activityResponse `json:"items"`
	}
	decode(t, w, &body)
	if len(body.Items) != 1 || body.Items[0].ResourceID != a.ID || body.Items[0].Metadata["status"] != "INTERVIEW" {
		t.Errorf("items = %+v", body.Items)
	}

	w = env.do(t, http.MethodGet, "/v1/activity", nil, env.token(t, env.other))
	decode(t, w, &body)
	if len(body.Items) != 0 {
		t.Errorf("other user sees %d entries", len(body.Items))
	}
}
