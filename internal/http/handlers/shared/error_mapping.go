package shared

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// MappedHandlerError 定义业务错误到接口错误响应的映射关系。
type MappedHandlerError struct {
	Target    error
	Code      int
	ErrorCode string
}

// RespondWithMappedError 按规则表翻译业务错误，未命中时使用兜底并记录原始错误。
func RespondWithMappedError(c *gin.Context, err error, rules []MappedHandlerError, fallbackCode int, fallbackErrorCode string) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			RequestLog(c).Debugw("handler_error_mapped", "error_code", rule.ErrorCode, "error", err)
			RespondError(c, rule.Code, rule.ErrorCode, nil)
			return
		}
	}
	RespondError(c, fallbackCode, fallbackErrorCode, err)
}

// ConcatMappedHandlerErrors 合并多组规则。
func ConcatMappedHandlerErrors(groups ...[]MappedHandlerError) []MappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]MappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}
