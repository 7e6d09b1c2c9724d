package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/alipay"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/paypal"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/stripe"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/wechatpay"
)

// VerifiedEvent 已通过服务商签名校验的支付事件
// Status 为空表示该事件不触发订单状态流转
type VerifiedEvent struct {
	Provider      string                 `json:"provider"`
	EventType     string                 `json:"event_type"`
	OrderID       string                 `json:"order_id"`
	ProviderRef   string                 `json:"provider_ref,omitempty"`
	TransactionID string                 `json:"transaction_id"`
	Status        string                 `json:"status"`
	AmountMinor   int64                  `json:"amount"`
	Currency      string                 `json:"currency"`
	Passback      map[string]string      `json:"passback,omitempty"`
	PaidAt        *time.Time             `json:"paid_at,omitempty"`
	Raw           map[string]interface{} `json:"-"`
}

// IsPaid 是否为支付成功事件
func (e *VerifiedEvent) IsPaid() bool {
	return e != nil && e.Status == constants.OrderStatusPaid
}

// IsCancelled 是否为关闭/失败事件
func (e *VerifiedEvent) IsCancelled() bool {
	return e != nil && e.Status == constants.OrderStatusCancelled
}

type wechatDecodeFunc func(ctx context.Context, cfg *wechatpay.Config, headers http.Header, body []byte) (*wechatpay.WebhookResult, error)

// CallbackVerifier 校验各服务商回调并归一化为 VerifiedEvent
// 校验失败的回调不会产生任何数据写入
type CallbackVerifier struct {
	factory      *GatewayFactory
	wechatDecode wechatDecodeFunc
	now          func() time.Time
}

// NewCallbackVerifier 创建回调校验器
func NewCallbackVerifier(factory *GatewayFactory) *CallbackVerifier {
	return &CallbackVerifier{
		factory:      factory,
		wechatDecode: wechatpay.VerifyAndDecodeWebhook,
		now:          time.Now,
	}
}

// VerifyAlipay 校验支付宝异步通知
func (v *CallbackVerifier) VerifyAlipay(ctx context.Context, form url.Values) (*VerifiedEvent, error) {
	cfg, currency, err := v.factory.AlipayConfig()
	if err != nil {
		return nil, err
	}
	if err := alipay.VerifyCallback(cfg, form); err != nil {
		logger.Warnw("alipay_callback_verify_failed", "out_trade_no", form.Get("out_trade_no"), "error", err)
		return nil, ErrSignatureInvalid
	}
	if err := alipay.VerifyCallbackOwnership(cfg, form); err != nil {
		logger.Warnw("alipay_callback_app_mismatch", "app_id", form.Get("app_id"), "error", err)
		return nil, ErrSignatureInvalid
	}
	notification, err := alipay.ParseNotification(form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackPayloadInvalid, err)
	}
	return &VerifiedEvent{
		Provider:      constants.PaymentMethodAlipay,
		EventType:     notification.TradeStatus,
		OrderID:       notification.OutTradeNo,
		TransactionID: notification.TradeNo,
		Status:        alipay.ToOrderStatus(notification.TradeStatus),
		AmountMinor:   notification.AmountMinor,
		Currency:      currency,
		Passback:      notification.Passback,
		PaidAt:        notification.PaidAt,
		Raw:           formToMap(form),
	}, nil
}

// VerifyWechat 校验并解密微信支付通知
func (v *CallbackVerifier) VerifyWechat(ctx context.Context, headers http.Header, body []byte) (*VerifiedEvent, error) {
	cfg, currency, err := v.factory.WechatConfig()
	if err != nil {
		return nil, err
	}
	result, err := v.wechatDecode(ctx, cfg, headers, body)
	if err != nil {
		logger.Warnw("wechat_callback_verify_failed", "error", err)
		if errors.Is(err, wechatpay.ErrResponseInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrCallbackPayloadInvalid, err)
		}
		return nil, ErrSignatureInvalid
	}
	if result.Currency != "" {
		currency = result.Currency
	}
	return &VerifiedEvent{
		Provider:      constants.PaymentMethodWechat,
		EventType:     result.EventType,
		OrderID:       result.OrderID,
		TransactionID: result.TransactionID,
		Status:        wechatpay.ToOrderStatus(result.TradeState),
		AmountMinor:   result.AmountMinor,
		Currency:      currency,
		Passback:      result.Passback,
		PaidAt:        result.PaidAt,
		Raw:           result.Raw,
	}, nil
}

// VerifyPaypal 通过 PayPal 接口校验 Webhook 签名并解析事件
func (v *CallbackVerifier) VerifyPaypal(ctx context.Context, headers http.Header, body []byte) (*VerifiedEvent, error) {
	cfg, _, err := v.factory.PaypalConfig()
	if err != nil {
		return nil, err
	}
	if err := paypal.VerifyWebhookSignature(ctx, cfg, headers, body); err != nil {
		logger.Warnw("paypal_webhook_verify_failed", "error", err)
		if errors.Is(err, paypal.ErrWebhookVerifyFailed) {
			return nil, ErrSignatureInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrPaymentProviderFailed, err)
	}
	event, err := paypal.ParseWebhookEvent(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackPayloadInvalid, err)
	}
	verified := &VerifiedEvent{
		Provider:      constants.PaymentMethodPaypal,
		EventType:     event.EventType,
		OrderID:       event.LocalOrderID(),
		ProviderRef:   event.PaypalOrderID(),
		TransactionID: event.TransactionID(),
		Status:        paypal.ToOrderStatus(event.EventType),
		Passback:      event.Passback(),
		PaidAt:        event.PaidAt(),
		Raw:           event.Raw,
	}
	if verified.IsPaid() {
		amount, currency, err := event.CaptureAmount()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCallbackPayloadInvalid, err)
		}
		verified.AmountMinor = amount
		verified.Currency = currency
	}
	if verified.OrderID == "" && verified.ProviderRef == "" {
		return nil, fmt.Errorf("%w: order reference is missing", ErrCallbackPayloadInvalid)
	}
	return verified, nil
}

// VerifyStripe 校验 Stripe-Signature 并解析 Checkout Session 事件
func (v *CallbackVerifier) VerifyStripe(ctx context.Context, headers http.Header, body []byte) (*VerifiedEvent, error) {
	cfg, err := v.factory.StripeWebhookConfig()
	if err != nil {
		return nil, err
	}
	event, err := stripe.VerifyAndParseWebhook(cfg, headers, body, v.now())
	if err != nil {
		logger.Warnw("stripe_webhook_verify_failed", "error", err)
		if errors.Is(err, stripe.ErrSignatureInvalid) {
			return nil, ErrSignatureInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrCallbackPayloadInvalid, err)
	}
	verified := &VerifiedEvent{
		Provider:      constants.PaymentMethodStripe,
		EventType:     event.EventType,
		OrderID:       event.OrderID,
		ProviderRef:   event.SessionID,
		TransactionID: event.TransactionID(),
		Status:        stripe.ToOrderStatus(event.EventType, event.PaymentStatus),
		AmountMinor:   event.AmountMinor,
		Currency:      strings.ToUpper(event.Currency),
		Passback:      event.Passback,
		PaidAt:        event.PaidAt,
		Raw:           event.Raw,
	}
	if verified.OrderID == "" && verified.ProviderRef == "" {
		return nil, fmt.Errorf("%w: order reference is missing", ErrCallbackPayloadInvalid)
	}
	return verified, nil
}

func formToMap(form url.Values) map[string]interface{} {
	result := make(map[string]interface{}, len(form))
	for key := range form {
		if key == "sign" {
			continue
		}
		result[key] = form.Get(key)
	}
	return result
}
