package platform

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized 表示凭证无效或会话失效且无法重新认证。
	ErrUnauthorized = errors.New("platform: unauthorized")
	// ErrNotFound 表示资源不存在。
	ErrNotFound = errors.New("platform: not found")
	// ErrRateLimited 表示平台返回 429。
	ErrRateLimited = errors.New("platform: rate limited")
	// ErrChallengeRequired 表示平台要求额外的身份挑战（如生物识别），本客户端不支持。
	ErrChallengeRequired = errors.New("platform: additional authentication challenge required")
	// ErrNoCredentials 表示未配置凭证却调用了 Authenticate。
	ErrNoCredentials = errors.New("platform: credentials not configured")
)

// StatusError 描述一次非 2xx 响应。
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Is 让 errors.Is 可以按状态码匹配哨兵错误。
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func newStatusError(endpoint string, status int, body []byte) *StatusError {
	const maxBody = 512
	text := string(body)
	if len(text) > maxBody {
		text = text[:maxBody] + "..."
	}
	return &StatusError{Endpoint: endpoint, StatusCode: status, Body: text}
}
