package analysis

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrQuotaExhausted 表示用户的分析额度已用完。
	ErrQuotaExhausted = errors.New("analysis quota exhausted")
	// ErrResumeMissing 表示候选人没有可读取的简历。
	ErrResumeMissing = errors.New("resume missing")
	// ErrDisabled 表示未配置模型或任务队列。
	ErrDisabled = errors.New("analysis disabled")
)

// Error 是模型调用失败；Temporary 为 true 时表示上游过载，可以重试。
type Error struct {
	Temporary bool
	Err       error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// IsTemporary 判断错误是否为可重试的临时失败。
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary
	}
	return temporary(err)
}

func classify(err error) *Error {
	return &Error{Temporary: temporary(err), Err: err}
}

func temporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			return temporaryHTTP(code)
		}
		if st := apiErr.GRPCStatus(); st != nil {
			return temporaryGRPC(st.Code())
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return temporaryHTTP(gErr.Code)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return temporaryGRPC(st.Code())
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"overloaded", "rate limit", "try again later", "503", "429"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func temporaryHTTP(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func temporaryGRPC(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}
