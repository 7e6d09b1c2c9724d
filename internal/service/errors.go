package service

import "errors"

// 下单相关错误
var (
	ErrUnauthenticated          = errors.New("user is not authenticated")
	ErrInvalidPlan              = errors.New("plan is invalid")
	ErrInvalidPaymentMethod     = errors.New("payment method is invalid")
	ErrPaymentMethodUnavailable = errors.New("payment method is unavailable")
	ErrPriceNotConfigured       = errors.New("plan price is not configured")
	ErrOrderPersistenceFailed   = errors.New("order persistence failed")
	ErrPaymentProviderFailed    = errors.New("payment provider request failed")
	ErrOrderFetchFailed         = errors.New("order fetch failed")
	ErrOrderNotFound            = errors.New("order not found")
	ErrOrderStatusInvalid       = errors.New("order status invalid")
	ErrOrderUpdateFailed        = errors.New("order update failed")
)

// 回调与对账相关错误
var (
	ErrSignatureInvalid        = errors.New("callback signature invalid")
	ErrCallbackPayloadInvalid  = errors.New("callback payload invalid")
	ErrCallbackInProgress      = errors.New("callback is being processed")
	ErrAlreadyProcessed        = errors.New("callback already processed")
	ErrAmountMismatch          = errors.New("callback amount mismatch")
	ErrPassbackMismatch        = errors.New("callback passback mismatch")
	ErrProfileUpdateFailed     = errors.New("profile update failed")
	ErrTransactionAppendFailed = errors.New("transaction append failed")
	ErrReconcileIssueNotFound  = errors.New("reconcile issue not found")
	ErrReconcileIssueResolved  = errors.New("reconcile issue already resolved")
)

// 管理端认证相关错误
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrCaptchaRequired    = errors.New("captcha is required")
	ErrCaptchaInvalid     = errors.New("captcha is invalid")
	ErrNotFound           = errors.New("not found")
)
