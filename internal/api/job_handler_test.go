package api

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/xuri/excelize/v2"

	"hirelane/internal/database"
	"hirelane/internal/database/dbtest"
)

func TestJobLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.owner)

	w := env.do(t, http.MethodPost, "/v1/jobs", map[string]any{"title": "  Backend Engineer ", "description": "Go"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body=%s", w.Code, w.Body.String())
	}
	var created jobResponse
	decode(t, w, &created)
	if created.Title != "Backend Engineer" || created.Status != database.JobStatusOpen {
		t.Fatalf("created = %+v", created)
	}
	path := "/v1/jobs/" + uintStr(created.ID)

	w = env.do(t, http.MethodPatch, path, map[string]any{"status": "ARCHIVED"}, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status patch = %d, want 400", w.Code)
	}
	w = env.do(t, http.MethodPatch, path, map[string]any{"status": database.JobStatusPaused}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body=%s", w.Code, w.Body.String())
	}
	var patched jobResponse
	decode(t, w, &patched)
	if patched.Status != database.JobStatusPaused || patched.Title != "Backend Engineer" {
		t.Errorf("patched = %+v", patched)
	}

	w = env.do(t, http.MethodGet, path, nil, env.token(t, env.other))
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign get = %d, want 403", w.Code)
	}

	w = env.do(t, http.MethodGet, "/v1/jobs?status=OPEN", nil, token)
	var listed struct {
		Jobs []jobResponse `json:"jobs"`
	}
	decode(t, w, &listed)
	if len(listed.Jobs) != 0 {
		t.Errorf("OPEN filter returned %d jobs", len(listed.Jobs))
	}

	var job database.Job
	if err := env.db.First(&job, created.ID).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	dbtest.SeedCandidate(t, env.db, job, "ada")
	dbtest.SeedCandidate(t, env.db, job, "bob")

	w = env.do(t, http.MethodDelete, path, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["count"] != float64(2) {
		t.Errorf("delete response = %v", resp)
	}

	var remaining int64
	env.db.Model(&database.Candidate{}).Where("job_id = ?", created.ID).Count(&remaining)
	if remaining != 0 {
		t.Errorf("candidates left after job delete: %d", remaining)
	}
	w = env.do(t, http.MethodGet, path, nil, token)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted job = %d, want 404", w.Code)
	}
	wantPrefix := "resumes/" + uintStr(env.owner.ID) + "/" + uintStr(created.ID) + "/"
	if len(env.storage.swept) != 1 || env.storage.swept[0] != wantPrefix {
		t.Errorf("swept = %v, want [%s]", env.storage.swept, wantPrefix)
	}

	var audits int64
	env.db.Model(&database.ActivityLog{}).Where("action = ?", auditJobDeleted).Count(&audits)
	if audits != 1 {
		t.Errorf("job.deleted audits = %d", audits)
	}
}

func TestJobCandidatesAndExport(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.owner)
	job := dbtest.SeedJob(t, env.db, env.owner.ID, "backend")
	dbtest.SeedCandidate(t, env.db, job, "ada", database.Tag{Name: "go", Color: "#00add8"})
	bob := dbtest.SeedCandidate(t, env.db, job, "bob")
	env.db.Model(&bob).Update("status", "HIRED")

	w := env.do(t, http.MethodGet, "/v1/jobs/"+uintStr(job.ID)+"/candidates?tag=GO", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listed struct {
		Candidates []candidateResponse `json:"candidates"`
	}
	decode(t, w, &listed)
	if len(listed.Candidates) != 1 || listed.Candidates[0].Name != "ada" {
		t.Errorf("tag filter = %+v", listed.Candidates)
	}

	w = env.do(t, http.MethodGet, "/v1/jobs/"+uintStr(job.ID)+"/stats", nil, token)
	var stats struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
	}
	decode(t, w, &stats)
	if stats.Total != 2 || stats.ByStatus["HIRED"] != 1 || stats.ByStatus["NEW"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	w = env.do(t, http.MethodGet, "/v1/jobs/"+uintStr(job.ID)+"/candidates/export", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Candidates")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("export rows = %d, want header + 2", len(rows))
	}
}
