package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"hirelane/internal/candidate"
	"hirelane/internal/database"
	"hirelane/internal/storage"
)

// 允许上传的简历格式。
var allowedResumeTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

// ResumeStore 保存与清理简历文件。
type ResumeStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// Scanner 检查上传内容是否含有恶意代码，clean 为 false 表示检出。
type Scanner interface {
	Scan(r io.Reader) (clean bool, err error)
}

// ClamdScanner 通过 clamd 扫描数据流。
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewScanner 在 addr 为空时返回 nil（不扫描）。
func NewScanner(addr string) Scanner {
	if strings.TrimSpace(addr) == "" {
		return nil
	}
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// Scan 实现 Scanner。
func (s *ClamdScanner) Scan(r io.Reader) (bool, error) {
	abort := make(chan bool)
	defer close(abort)
	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return false, fmt.Errorf("clamd scan: %w", err)
	}
	clean := true
	for result := range results {
		if result.Status != clamd.RES_OK {
			clean = false
		}
	}
	return clean, nil
}

// ApplyHandler 处理公开的简历投递。
type ApplyHandler struct {
	db         *gorm.DB
	candidates *candidate.Service
	storage    ResumeStore
	scanner    Scanner
	maxBytes   int64
	logger     *slog.Logger
}

// NewApplyHandler 构造 ApplyHandler；scanner 为 nil 时跳过病毒扫描。
func NewApplyHandler(db *gorm.DB, candidates *candidate.Service, storage ResumeStore, scanner Scanner, maxBytes int64, logger *slog.Logger) *ApplyHandler {
	return &ApplyHandler{
		db:         db,
		candidates: candidates,
		storage:    storage,
		scanner:    scanner,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

type applyForm struct {
	Name  string `form:"name" binding:"required,max=255"`
	Email string `form:"email" binding:"required,email,max=255"`
}

// Apply 接收 multipart 表单（name、email、file）。
func (h *ApplyHandler) Apply(c *gin.Context) {
	log := loggerFrom(c, h.logger)
	jobID, ok := idParam(c, "id")
	if !ok {
		BadRequest(c, "invalid job id")
		return
	}

	ctx := c.Request.Context()
	job, err := findJob(ctx, h.db, jobID)
	if err != nil {
		if errors.Is(err, errJobNotFound) {
			NotFound(c, "job not found")
			return
		}
		log.Error("load job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if job.Status != database.JobStatusOpen {
		Conflict(c, "job is not accepting applications")
		return
	}

	var form applyForm
	if err := c.ShouldBind(&form); err != nil {
		BadRequest(c, err.Error())
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 {
		BadRequest(c, "empty file")
		return
	}
	if h.maxBytes > 0 && file.Size > h.maxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		Internal(c, "failed to read file")
		return
	}

	detected := mimetype.Detect(data)
	contentType := strings.SplitN(detected.String(), ";", 2)[0]
	if !allowedResumeTypes[contentType] {
		Error(c, http.StatusUnsupportedMediaType, "resume must be a PDF, DOCX or plain text file")
		return
	}

	if h.scanner != nil {
		clean, err := h.scanner.Scan(bytes.NewReader(data))
		if err != nil {
			log.Error("scan resume failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			log.Warn("malicious resume rejected", slog.Uint64("job_id", uint64(job.ID)))
			BadRequest(c, "malicious file detected")
			return
		}
	}

	key := storage.ResumeObjectKey(job.UserID, job.ID, uuid.NewString(), detected.Extension())
	if err := h.storage.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		log.Error("upload resume failed", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	cand, err := h.candidates.Apply(ctx, candidate.ApplyInput{
		Job:               job,
		Name:              strings.TrimSpace(form.Name),
		Email:             strings.TrimSpace(form.Email),
		ResumeKey:         key,
		ResumeContentType: contentType,
	})
	if err != nil {
		log.Error("create candidate failed", slog.Any("error", err))
		if delErr := h.storage.DeleteObject(ctx, key); delErr != nil {
			log.Warn("cleanup uploaded resume failed", slog.String("key", key), slog.Any("error", delErr))
		}
		Internal(c, "internal error")
		return
	}

	log.Info("application received",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.Uint64("candidate_id", uint64(cand.ID)),
	)
	c.JSON(http.StatusCreated, gin.H{"id": cand.ID})
}
