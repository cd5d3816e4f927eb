package storage

import (
	"errors"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ErrNotFound 表示对象不存在；ReadObject 会把 S3 的 NoSuchKey 映射为它。
var ErrNotFound = errors.New("object not found")

// IsNoSuchKey 判断错误是否表示对象不存在。Bucket 不存在不算。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NotFound":
			return true
		case "NoSuchBucket":
			return false
		}
		return resp.StatusCode == http.StatusNotFound
	}

	// 部分网关只透传文本。
	return strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
}
