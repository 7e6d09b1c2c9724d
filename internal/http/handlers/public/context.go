package public

import (
	handlershared "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func getUserID(c *gin.Context) (string, bool) {
	return handlershared.GetContextString(c, handlershared.ContextKeyUserID)
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, errorCode string, err error) {
	handlershared.RespondError(c, code, errorCode, err)
}
