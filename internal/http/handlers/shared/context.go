package shared

import (
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextKeyUserID  = "user_id"
	ContextKeyAdminID = "admin_id"
)

// GetContextUint 从上下文读取 uint 值并统一处理错误响应。
func GetContextUint(c *gin.Context, key string) (uint, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, response.ErrorCodeUnauthenticated, nil)
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		if v == 0 {
			RespondError(c, response.CodeUnauthorized, response.ErrorCodeUnauthenticated, nil)
			return 0, false
		}
		return v, true
	case int:
		if v <= 0 {
			RespondError(c, response.CodeUnauthorized, response.ErrorCodeUnauthenticated, nil)
			return 0, false
		}
		return uint(v), true
	default:
		RespondError(c, response.CodeInternal, response.ErrorCodeInternal, nil)
		return 0, false
	}
}

// GetContextString 从上下文读取非空字符串。
func GetContextString(c *gin.Context, key string) (string, bool) {
	value, exists := c.Get(key)
	if !exists {
		RespondError(c, response.CodeUnauthorized, response.ErrorCodeUnauthenticated, nil)
		return "", false
	}
	text, ok := value.(string)
	if !ok {
		RespondError(c, response.CodeInternal, response.ErrorCodeInternal, nil)
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		RespondError(c, response.CodeUnauthorized, response.ErrorCodeUnauthenticated, nil)
		return "", false
	}
	return text, true
}
