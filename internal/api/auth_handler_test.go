package api

import (
	"net/http"
	"strings"
	"testing"
)

func TestRegisterLoginRefresh(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/auth/register", map[string]string{"username": "recruiter", "password": "correct horse"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d, body=%s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPost, "/v1/auth/register", map[string]string{"username": "recruiter", "password": "correct horse"}, "")
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register = %d, want 409", w.Code)
	}
	w = env.do(t, http.MethodPost, "/v1/auth/register", map[string]string{"username": "x", "password": "short"}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid register = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"username": "recruiter", "password": "wrong password"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", w.Code)
	}

	w = env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"username": "recruiter", "password": "correct horse"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d, body=%s", w.Code, w.Body.String())
	}
	var tokens tokenResponse
	decode(t, w, &tokens)
	if tokens.AccessToken == "" || tokens.TokenType != "Bearer" || tokens.IsAdmin {
		t.Errorf("tokens = %+v", tokens)
	}
	var refresh string
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshTokenCookieName {
			refresh = c.Value
			if !c.HttpOnly {
				t.Error("refresh cookie must be HttpOnly")
			}
		}
	}
	if refresh == "" {
		t.Fatal("refresh cookie missing")
	}

	w = env.do(t, http.MethodGet, "/v1/jobs", nil, "Bearer "+tokens.AccessToken)
	if w.Code != http.StatusOK {
		t.Errorf("authorised request = %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body=%s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": tokens.AccessToken}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh with access token = %d, want 401", w.Code)
	}
}

func TestLoginReportsAdminFlag(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/auth/register", map[string]string{"username": "boss", "password": "correct horse"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register = %d", w.Code)
	}
	env.db.Exec("UPDATE users SET is_admin = ? WHERE username = ?", true, "boss")

	w = env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{"username": "boss", "password": "correct horse"}, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"is_admin":true`) {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}
}
