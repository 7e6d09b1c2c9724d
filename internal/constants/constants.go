package constants

// 订单状态常量
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// 套餐类型常量
const (
	PlanFree       = "free"
	PlanProMonthly = "pro_monthly"
	PlanProYearly  = "pro_yearly"
)

// 支付方式常量
const (
	PaymentMethodAlipay = "alipay"
	PaymentMethodPaypal = "paypal"
	PaymentMethodWechat = "wechat"
	PaymentMethodPhone  = "phone"
	PaymentMethodStripe = "stripe"
)

// 订单号前缀常量
const (
	OrderPrefixAlipay = "ALI"
	OrderPrefixPaypal = "PPL"
	OrderPrefixWechat = "WXP"
	OrderPrefixPhone  = "PHN"
	OrderPrefixStripe = "STR"
)

// 订阅状态常量
const (
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusActive   = "active"
)

// 交易流水状态常量
const (
	TransactionStatusSuccess = "success"
)

// 对账异常常量
const (
	ReconcileIssueStatusOpen     = "open"
	ReconcileIssueStatusResolved = "resolved"

	ReconcileStageApply       = "apply"
	ReconcileStageLatePayment = "late_payment"
	ReconcileStageAmount      = "amount_mismatch"
	ReconcileStagePassback    = "passback_mismatch"
)

// 支付交互方式常量
const (
	PaymentInteractionRedirect = "redirect"
	PaymentInteractionForm     = "form"
	PaymentInteractionQR       = "qr"
)

// 支付宝回调常量
const (
	AlipayTradeStatusSuccess      = "TRADE_SUCCESS"
	AlipayTradeStatusFinished     = "TRADE_FINISHED"
	AlipayTradeStatusClosed       = "TRADE_CLOSED"
	AlipayTradeStatusWaitBuyerPay = "WAIT_BUYER_PAY"
	AlipayCallbackSuccess         = "success"
	AlipayCallbackFail            = "fail"
)

// 通用 Webhook 应答常量
const (
	WebhookAckSuccess = "success"
	WebhookAckFail    = "fail"
)

// 微信支付回调常量
const (
	WechatCallbackCodeSuccess = "SUCCESS"
	WechatCallbackCodeFail    = "FAIL"
)

// 验证码常量
const (
	CaptchaProviderNone  = "none"
	CaptchaProviderImage = "image"
)

// 队列常量
const (
	QueueDefault           = "default"
	QueueCritical          = "critical"
	TaskOrderTimeoutCancel = "order:timeout_cancel"
	TaskOrderPaid          = "order:paid"
	TaskReconcileRetry     = "reconcile:retry"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "qm"
)

// 币种常量
const (
	CurrencyCNY = "CNY"
	CurrencyUSD = "USD"
)
