package admin

import (
	"strconv"
	"strings"

	handlershared "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/shared"
	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"

	"github.com/gin-gonic/gin"
)

func getAdminID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, handlershared.ContextKeyAdminID)
}

// parseUintParam 解析路径中的数字 ID，非法时直接返回 400
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, response.ErrorCodeBadRequest, nil)
		return 0, false
	}
	return uint(id), true
}
