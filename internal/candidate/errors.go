package candidate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest 表示请求参数不合法；具体原因通过包装附带。
	ErrInvalidRequest = errors.New("invalid request")
	// ErrForbidden 表示至少一条候选人不属于调用者。
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound 表示至少一条候选人不存在。
	ErrNotFound = errors.New("candidate not found")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
