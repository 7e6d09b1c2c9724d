package public

import (
	handlershared "github.com/qingyi232/QuizMate1-sub002/internal/http/handlers/shared"
	"github.com/qingyi232/QuizMate1-sub002/internal/http/response"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/gin-gonic/gin"
)

type mappedHandlerError = handlershared.MappedHandlerError

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackErrorCode string) {
	handlershared.RespondWithMappedError(c, err, rules, fallbackCode, fallbackErrorCode)
}

var userOrderQueryErrorRules = []mappedHandlerError{
	{Target: service.ErrUnauthenticated, Code: response.CodeUnauthorized, ErrorCode: response.ErrorCodeUnauthenticated},
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, ErrorCode: response.ErrorCodeOrderNotFound},
	{Target: service.ErrOrderFetchFailed, Code: response.CodeInternal, ErrorCode: response.ErrorCodeOrderFetchFailed},
}

var createOrderErrorRules = handlershared.ConcatMappedHandlerErrors([]mappedHandlerError{
	{Target: service.ErrInvalidPlan, Code: response.CodeBadRequest, ErrorCode: response.ErrorCodeInvalidPlan},
	{Target: service.ErrInvalidPaymentMethod, Code: response.CodeBadRequest, ErrorCode: response.ErrorCodeInvalidPaymentMethod},
	{Target: service.ErrPaymentMethodUnavailable, Code: response.CodeBadRequest, ErrorCode: response.ErrorCodePaymentUnavailable},
	{Target: service.ErrOrderPersistenceFailed, Code: response.CodeInternal, ErrorCode: response.ErrorCodeOrderPersistenceFailed},
	{Target: service.ErrPaymentProviderFailed, Code: response.CodeInternal, ErrorCode: response.ErrorCodePaymentProviderFailed},
}, userOrderQueryErrorRules)

var captureOrderErrorRules = handlershared.ConcatMappedHandlerErrors([]mappedHandlerError{
	{Target: service.ErrInvalidPaymentMethod, Code: response.CodeBadRequest, ErrorCode: response.ErrorCodeInvalidPaymentMethod},
	{Target: service.ErrPaymentMethodUnavailable, Code: response.CodeBadRequest, ErrorCode: response.ErrorCodePaymentUnavailable},
	{Target: service.ErrOrderStatusInvalid, Code: response.CodeConflict, ErrorCode: response.ErrorCodeOrderStatusInvalid},
	{Target: service.ErrCallbackInProgress, Code: response.CodeConflict, ErrorCode: response.ErrorCodeCallbackInProgress},
	{Target: service.ErrPaymentProviderFailed, Code: response.CodeBadGateway, ErrorCode: response.ErrorCodePaymentProviderFailed},
}, userOrderQueryErrorRules)
