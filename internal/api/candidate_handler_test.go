package api

import (
	"net/http"
	"strings"
	"testing"

	"hirelane/internal/database"
	"hirelane/internal/database/dbtest"
)

func TestBulkStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	job := dbtest.SeedJob(t, env.db, env.owner.ID, "backend")
	a := dbtest.SeedCandidate(t, env.db, job, "ada")
	b := dbtest.SeedCandidate(t, env.db, job, "bob")
	foreignJob := dbtest.SeedJob(t, env.db, env.other.ID, "foreign")
	foreign := dbtest.SeedCandidate(t, env.db, foreignJob, "eve")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"success", map[string]any{"candidateIds": []uint{a.ID, b.ID}, "status": "SHORTLISTED"}, http.StatusOK},
		{"unknown status", map[string]any{"candidateIds": []uint{a.ID}, "status": "UNKNOWN"}, http.StatusBadRequest},
		{"empty ids", map[string]any{"candidateIds": []uint{}, "status": "HIRED"}, http.StatusBadRequest},
		{"foreign candidate", map[string]any{"candidateIds": []uint{a.ID, foreign.ID}, "status": "HIRED"}, http.StatusForbidden},
		{"missing candidate", map[string]any{"candidateIds": []uint{a.ID, 9999}, "status": "HIRED"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/v1/candidates/bulk/status", tt.body, env.token(t, env.owner))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d, body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	var got database.Candidate
	if err := env.db.First(&got, b.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != "SHORTLISTED" {
		t.Errorf("status = %q, want SHORTLISTED", got.Status)
	}
	if err := env.db.First(&got, foreign.ID).Error; err != nil {
		t.Fatalf("reload foreign: %v", err)
	}
	if got.Status != "NEW" {
		t.Errorf("foreign candidate changed to %q", got.Status)
	}
}

func TestBulkStatusEndpoint_ResponseShape(t *testing.T) {
	env := newTestEnv(t)
	job := dbtest.SeedJob(t, env.db, env.owner.ID, "backend")
	a := dbtest.SeedCandidate(t, env.db, job, "ada")

	w := env.do(t, http.MethodPost, "/v1/candidates/bulk/status",
		map[string]any{"candidateIds": []uint{a.ID}, "status": "REVIEWING"}, env.token(t, env.owner))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["success"] != true || resp["count"] != float64(1) {
		t.Errorf("response = %v", resp)
	}
	if _, ok := resp["failed"]; ok {
		t.Errorf("failed must be omitted when zero: %v", resp)
	}
}

func TestBulkEndpoints_RequireAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/v1/candidates/bulk/status", "/v1/candidates/bulk/tags", "/v1/candidates/bulk/delete"} {
		w := env.do(t, http.MethodPost, path, map[string]any{"candidateIds": []uint{1}}, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, w.Code)
		}
	}
}

func TestBulkTagsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	job := dbtest.SeedJob(t, env.db, env.owner.ID, "backend")
	a := dbtest.SeedCandidate(t, env.db, job, "ada", database.Tag{Name: "Senior", Color: "#fff"})
	b := dbtest.SeedCandidate(t, env.db, job, "bob")
	token := env.token(t, env.owner)

	w := env.do(t, http.MethodPost, "/v1/candidates/bulk/tags", map[string]any{
		"candidateIds": []uint{a.ID, b.ID},
		"action":       "add",
		"tags":         []map[string]string{{"name": "senior", "color": "#000000"}},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d, body=%s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/v1/tags", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list tags status = %d", w.Code)
	}
	var listed struct {
		Tags []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"tags"`
	}
	decode(t, w, &listed)
	if len(listed.Tags) != 1 || listed.Tags[0].Count != 2 {
		t.Errorf("tags = %+v", listed.Tags)
	}

	w = env.do(t, http.MethodPost, "/v1/candidates/bulk/tags", map[string]any{
		"candidateIds": []uint{a.ID},
		"action":       "add",
		"tags":         []map[string]string{{"name": "x", "color": "red"}},
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid colour status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPut, "/v1/candidates/"+uintStr(a.ID)+"/tags", map[string]any{
		"action": "replace",
		"tags":   []map[string]string{},
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("replace status = %d, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"tags":[]`) {
		t.Errorf("replace body = %s", w.Body.String())
	}
}

func TestBulkDeleteEndpoint(t *testing.T) {
	env := newTestEnv(t)
	job := dbtest.SeedJob(t, env.db, env.owner.ID, "backend")
	a := dbtest.SeedCandidate(t, env.db, job, "ada")
	b := dbtest.SeedCandidate(t, env.db, job, "bob")

	w := env.do(t, http.MethodPost, "/v1/candidates/bulk/delete",
		map[string]any{"candidateIds": []uint{a.ID, b.ID}}, env.token(t, env.other))
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign delete status = %d, want 403", w.Code)
	}

	w = env.do(t, http.MethodPost, "/v1/candidates/bulk/delete",
		map[string]any{"candidateIds": []uint{a.ID, b.ID}}, env.token(t, env.owner))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body=%s", w.Code, w.Body.String())
	}
	var n int64
	env.db.Model(&database.Candidate{}).Count(&n)
	if n != 0 {
		t.Errorf("remaining candidates = %d", n)
	}
	if len(env.storage.deleted) != 2 {
		t.Errorf("deleted objects = %v", env.storage.deleted)
	}
}

func TestCandidateReadEndpoints(t *testing.T) {
	env := newTestEnv(t)
	job := dbtest.SeedJob(t, env.db, env.owner.ID, "backend")
	a := dbtest.SeedCandidate(t, env.db, job, "ada")
	token := env.token(t, env.owner)

	w := env.do(t, http.MethodGet, "/v1/candidates/"+uintStr(a.ID), nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got candidateResponse
	decode(t, w, &got)
	if got.Name != "ada" || !got.HasResume || got.Tags == nil {
		t.Errorf("candidate = %+v", got)
	}

	w = env.do(t, http.MethodGet, "/v1/candidates/"+uintStr(a.ID), nil, env.token(t, env.other))
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign get status = %d, want 403", w.Code)
	}

	w = env.do(t, http.MethodGet, "/v1/candidates/"+uintStr(a.ID)+"/resume", nil, token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), a.ResumeKey) {
		t.Errorf("resume url: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/v1/dashboard/stats", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"NEW":1`) {
		t.Errorf("dashboard body = %s", w.Body.String())
	}
}
