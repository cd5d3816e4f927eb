package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hirelane/internal/activity"
	"hirelane/internal/analysis"
	"hirelane/internal/auth"
	"hirelane/internal/candidate"
	"hirelane/internal/config"
	"hirelane/internal/database"
	"hirelane/internal/database/dbtest"
	"hirelane/internal/notify"
	"hirelane/internal/ratelimit"
)

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
	swept    []string
	probeErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	b, _ := io.ReadAll(reader)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[objectName] = b
	return nil
}

func (s *fakeStorage) ReadObject(_ context.Context, key string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploaded[key], "application/pdf", nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration, _ map[string]string) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swept = append(s.swept, prefix)
	for key := range s.uploaded {
		if strings.HasPrefix(key, prefix) {
			delete(s.uploaded, key)
		}
	}
	return nil
}

func (s *fakeStorage) Probe(context.Context) error { return s.probeErr }

type testEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	auth    *auth.AuthService
	storage *fakeStorage
	source  *fakeSource
	owner   database.User
	other   database.User
	admin   database.User
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	svc, err := auth.NewAuthService(privPEM, pubPEM, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	env := &testEnv{
		db:      db,
		auth:    newTestAuthService(t),
		storage: newFakeStorage(),
		source:  newFakeSource(),
		owner:   dbtest.SeedUser(t, db, "owner"),
		other:   dbtest.SeedUser(t, db, "other"),
		admin:   dbtest.SeedUser(t, db, "root"),
	}
	if err := db.Model(&env.admin).Update("is_admin", true).Error; err != nil {
		t.Fatalf("promote admin: %v", err)
	}
	env.admin.IsAdmin = true

	logger := discardLogger()
	recorder := activity.NewRecorder(db)
	candidates := candidate.NewService(db, env.storage, recorder, nil, logger)
	analysisSvc := analysis.NewService(db, nil, env.storage, recorder, nil, nil, logger, analysis.Options{DefaultAllotment: 3})

	cfg := &config.Config{}
	cfg.API.MaxUploadBytes = 1 << 20

	env.router = gin.New()
	RegisterRoutes(env.router, Dependencies{
		Config:     cfg,
		DB:         db,
		Auth:       env.auth,
		Candidates: candidates,
		Analysis:   analysisSvc,
		Activity:   recorder,
		Notify:     notify.NewService(notify.NewGormStore(db)),
		Storage:    env.storage,
		Source:     env.source,
		Limiter:    ratelimit.NewMemoryLimiter(1000, time.Minute),
		Logger:     logger,
	})
	return env
}

func (e *testEnv) token(t *testing.T, user database.User) string {
	t.Helper()
	pair, err := e.auth.GenerateTokenPair(user.ID, user.IsAdmin)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	return "Bearer " + pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func newMultipartApplication(t *testing.T, name, email, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("name", name)
	_ = writer.WriteField("email", email)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func uintStr(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
