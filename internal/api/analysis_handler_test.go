package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"hirelane/internal/analysis"
	"hirelane/internal/candidate"
	"hirelane/internal/database/dbtest"
	"hirelane/internal/errcode"
)

func TestAnalysisWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAnalysisHandler(nil, discardLogger())

	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      int
		wantTemporary *bool
		wantRetry     bool
	}{
		{name: "quota", err: analysis.ErrQuotaExhausted, wantStatus: http.StatusForbidden, wantCode: errcode.QuotaExhausted},
		{name: "resume missing", err: fmt.Errorf("%w: gone", analysis.ErrResumeMissing), wantStatus: http.StatusNotFound, wantCode: errcode.ResumeMissing},
		{name: "disabled", err: analysis.ErrDisabled, wantStatus: http.StatusServiceUnavailable, wantTemporary: boolPtr(false)},
		{name: "temporary", err: &analysis.Error{Temporary: true, Err: errors.New("model overloaded")}, wantStatus: http.StatusServiceUnavailable, wantCode: errcode.UpstreamBusy, wantTemporary: boolPtr(true), wantRetry: true},
		{name: "permanent", err: &analysis.Error{Err: errors.New("invalid argument")}, wantStatus: http.StatusInternalServerError, wantCode: errcode.SystemError, wantTemporary: boolPtr(false)},
		{name: "forbidden", err: candidate.ErrForbidden, wantStatus: http.StatusForbidden},
		{name: "not found", err: candidate.ErrNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			h.writeError(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body struct {
				Error       string `json:"error"`
				Code        int    `json:"code"`
				IsTemporary *bool  `json:"isTemporary"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == "" {
				t.Error("error message missing")
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", body.Code, tt.wantCode)
			}
			if tt.wantTemporary != nil {
				if body.IsTemporary == nil || *body.IsTemporary != *tt.wantTemporary {
					t.Errorf("isTemporary = %v, want %v", body.IsTemporary, *tt.wantTemporary)
				}
			}
			if got := w.Header().Get("Retry-After"); (got != "") != tt.wantRetry {
				t.Errorf("Retry-After = %q", got)
			}
		})
	}
}

func TestAnalyzeEndpoint_DisabledProvider(t *testing.T) {
	env := newTestEnv(t)
	job := dbtest.SeedJob(t, env.db, env.owner.ID, "backend")
	a := dbtest.SeedCandidate(t, env.db, job, "ada")

	w := env.do(t, http.MethodPost, "/v1/candidates/"+uintStr(a.ID)+"/analyze", nil, env.token(t, env.owner))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503, body=%s", w.Code, w.Body.String())
	}
}

func TestQuotaEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/quota", nil, env.token(t, env.owner))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var quota analysis.QuotaView
	decode(t, w, &quota)
	if quota.UserID != env.owner.ID || quota.Allotment != 3 || quota.Remaining != 3 {
		t.Errorf("quota = %+v", quota)
	}
}

func boolPtr(v bool) *bool { return &v }
