package admin

import (
	handlershared "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/shared"
	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type mappedHandlerError = handlershared.MappedHandlerError

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, errorCode string, err error) {
	handlershared.RespondError(c, code, errorCode, err)
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError) {
	handlershared.RespondWithMappedError(c, err, rules, response.CodeInternal, response.ErrorCodeInternal)
}

var adminOrderErrorRules = []mappedHandlerError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, ErrorCode: response.ErrorCodeOrderNotFound},
	{Target: service.ErrOrderStatusInvalid, Code: response.CodeConflict, ErrorCode: response.ErrorCodeOrderStatusInvalid},
	{Target: service.ErrOrderFetchFailed, Code: response.CodeInternal, ErrorCode: response.ErrorCodeOrderFetchFailed},
	{Target: service.ErrOrderUpdateFailed, Code: response.CodeInternal, ErrorCode: response.ErrorCodeOrderUpdateFailed},
}

var reconcileIssueErrorRules = handlershared.ConcatMappedHandlerErrors([]mappedHandlerError{
	{Target: service.ErrReconcileIssueNotFound, Code: response.CodeNotFound, ErrorCode: response.ErrorCodeIssueNotFound},
	{Target: service.ErrReconcileIssueResolved, Code: response.CodeConflict, ErrorCode: response.ErrorCodeIssueResolved},
	{Target: service.ErrCallbackInProgress, Code: response.CodeConflict, ErrorCode: response.ErrorCodeCallbackInProgress},
	{Target: service.ErrAmountMismatch, Code: response.CodeConflict, ErrorCode: response.ErrorCodeAmountMismatch},
	{Target: service.ErrPassbackMismatch, Code: response.CodeConflict, ErrorCode: response.ErrorCodePassbackMismatch},
}, adminOrderErrorRules)

var loginErrorRules = []mappedHandlerError{
	{Target: service.ErrCaptchaRequired, Code: response.CodeBadRequest, ErrorCode: response.ErrorCodeCaptchaRequired},
	{Target: service.ErrCaptchaInvalid, Code: response.CodeBadRequest, ErrorCode: response.ErrorCodeCaptchaInvalid},
	{Target: service.ErrInvalidCredentials, Code: response.CodeUnauthorized, ErrorCode: response.ErrorCodeInvalidCredentials},
}
