package response

const (
	CodeOK                 = 0
	CodeBadRequest         = 400
	CodeUnauthorized       = 401
	CodeForbidden          = 403
	CodeNotFound           = 404
	CodeConflict           = 409
	CodeTooManyRequests    = 429
	CodeInternal           = 500
	CodeBadGateway         = 502
	CodeServiceUnavailable = 503
)

// 稳定错误码，前端与运维按此区分失败原因
const (
	ErrorCodeBadRequest             = "bad_request"
	ErrorCodeUnauthenticated        = "unauthenticated"
	ErrorCodeTokenInvalid           = "token_invalid"
	ErrorCodeForbidden              = "forbidden"
	ErrorCodeRateLimited            = "rate_limited"
	ErrorCodeInternal               = "internal_error"
	ErrorCodeInvalidPlan            = "invalid_plan"
	ErrorCodeInvalidPaymentMethod   = "invalid_payment_method"
	ErrorCodePaymentUnavailable     = "payment_method_unavailable"
	ErrorCodeOrderPersistenceFailed = "order_persistence_failed"
	ErrorCodePaymentProviderFailed  = "payment_provider_failed"
	ErrorCodeOrderNotFound          = "order_not_found"
	ErrorCodeOrderStatusInvalid     = "order_status_invalid"
	ErrorCodeOrderFetchFailed       = "order_fetch_failed"
	ErrorCodeOrderUpdateFailed      = "order_update_failed"
	ErrorCodeIssueNotFound          = "reconcile_issue_not_found"
	ErrorCodeIssueResolved          = "reconcile_issue_resolved"
	ErrorCodeCallbackInProgress     = "callback_in_progress"
	ErrorCodeAmountMismatch         = "amount_mismatch"
	ErrorCodePassbackMismatch       = "passback_mismatch"
	ErrorCodeInvalidCredentials     = "invalid_credentials"
	ErrorCodeCaptchaRequired        = "captcha_required"
	ErrorCodeCaptchaInvalid         = "captcha_invalid"
	ErrorCodeNotFound               = "not_found"
)
