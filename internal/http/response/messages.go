package response

// 对外只暴露通用提示，具体原因写入日志
var errorMessages = map[string]string{
	ErrorCodeBadRequest:             "invalid request",
	ErrorCodeUnauthenticated:        "authentication required",
	ErrorCodeTokenInvalid:           "token is invalid or revoked",
	ErrorCodeForbidden:              "permission denied",
	ErrorCodeRateLimited:            "too many requests, please retry later",
	ErrorCodeInternal:               "internal server error",
	ErrorCodeInvalidPlan:            "plan is invalid",
	ErrorCodeInvalidPaymentMethod:   "payment method is invalid",
	ErrorCodePaymentUnavailable:     "payment method is unavailable",
	ErrorCodeOrderPersistenceFailed: "failed to create order",
	ErrorCodePaymentProviderFailed:  "payment provider is unavailable",
	ErrorCodeOrderNotFound:          "order not found",
	ErrorCodeOrderStatusInvalid:     "order status does not allow this operation",
	ErrorCodeOrderFetchFailed:       "failed to load order",
	ErrorCodeOrderUpdateFailed:      "failed to update order",
	ErrorCodeIssueNotFound:          "reconcile issue not found",
	ErrorCodeIssueResolved:          "reconcile issue already resolved",
	ErrorCodeCallbackInProgress:     "payment is being processed",
	ErrorCodeAmountMismatch:         "paid amount does not match order",
	ErrorCodePassbackMismatch:       "payment owner does not match order",
	ErrorCodeInvalidCredentials:     "invalid username or password",
	ErrorCodeCaptchaRequired:        "captcha is required",
	ErrorCodeCaptchaInvalid:         "captcha is invalid",
	ErrorCodeNotFound:               "resource not found",
}

// Message 返回错误码对应的通用提示
func Message(errorCode string) string {
	if msg, ok := errorMessages[errorCode]; ok {
		return msg
	}
	return errorMessages[ErrorCodeInternal]
}
