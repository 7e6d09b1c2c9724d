package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/alipay"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/paypal"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/stripe"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/wechatpay"
)

// 回调路径，未在服务商配置中显式填写 notify_url 时按对外地址拼接
const (
	AlipayNotifyPath  = "/api/v1/payments/callback/alipay"
	WechatNotifyPath  = "/api/v1/payments/callback/wechat"
	PaypalWebhookPath = "/api/v1/payments/webhook/paypal"
	StripeWebhookPath = "/api/v1/payments/webhook/stripe"
)

// GatewayCreateInput 发起支付输入
type GatewayCreateInput struct {
	OrderID     string
	UserID      string
	Plan        string
	Subject     string
	AmountMinor int64
	Currency    string
	ReturnURL   string
	ClientIP    string
	ExpiresAt   time.Time
}

// GatewayCreateResult 发起支付结果
type GatewayCreateResult struct {
	InteractionMode string
	PaymentURL      string
	PaymentForm     string
	QRCode          string
	ProviderRef     string
	Raw             map[string]interface{}
}

// PaymentGateway 单个支付方式的下单能力
type PaymentGateway interface {
	Method() string
	Currency() string
	CreatePayment(ctx context.Context, input GatewayCreateInput) (*GatewayCreateResult, error)
}

// GatewayProvider 按支付方式构建网关
type GatewayProvider interface {
	Gateway(method string) (PaymentGateway, error)
}

// GatewayFactory 每次请求从配置解析服务商凭据并构建网关，不持有任何 SDK 单例
type GatewayFactory struct {
	payment     config.PaymentConfig
	publicBase  string
	frontendURL string
}

// NewGatewayFactory 创建网关工厂
func NewGatewayFactory(app config.AppConfig, payment config.PaymentConfig) *GatewayFactory {
	return &GatewayFactory{
		payment:     payment,
		publicBase:  strings.TrimRight(strings.TrimSpace(app.PublicBaseURL), "/"),
		frontendURL: strings.TrimSpace(app.FrontendURL),
	}
}

// IsKnownPaymentMethod 判断支付方式是否在枚举中
func IsKnownPaymentMethod(method string) bool {
	switch method {
	case constants.PaymentMethodAlipay,
		constants.PaymentMethodPaypal,
		constants.PaymentMethodWechat,
		constants.PaymentMethodStripe,
		constants.PaymentMethodPhone:
		return true
	default:
		return false
	}
}

// OrderPrefix 返回支付方式对应的订单号前缀
func OrderPrefix(method string) string {
	switch method {
	case constants.PaymentMethodAlipay:
		return constants.OrderPrefixAlipay
	case constants.PaymentMethodPaypal:
		return constants.OrderPrefixPaypal
	case constants.PaymentMethodWechat:
		return constants.OrderPrefixWechat
	case constants.PaymentMethodStripe:
		return constants.OrderPrefixStripe
	case constants.PaymentMethodPhone:
		return constants.OrderPrefixPhone
	default:
		return ""
	}
}

// EnabledMethods 返回当前可下单的支付方式
func (f *GatewayFactory) EnabledMethods() []string {
	methods := make([]string, 0, 4)
	for _, method := range []string{
		constants.PaymentMethodAlipay,
		constants.PaymentMethodWechat,
		constants.PaymentMethodPaypal,
		constants.PaymentMethodStripe,
	} {
		if _, err := f.Gateway(method); err == nil {
			methods = append(methods, method)
		}
	}
	return methods
}

// Gateway 构建支付网关
func (f *GatewayFactory) Gateway(method string) (PaymentGateway, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if !IsKnownPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}
	switch method {
	case constants.PaymentMethodAlipay:
		cfg, currency, err := f.AlipayConfig()
		if err != nil {
			return nil, err
		}
		return &alipayGateway{cfg: cfg, currency: currency}, nil
	case constants.PaymentMethodWechat:
		cfg, currency, err := f.WechatConfig()
		if err != nil {
			return nil, err
		}
		return &wechatGateway{cfg: cfg, currency: currency}, nil
	case constants.PaymentMethodPaypal:
		cfg, currency, err := f.PaypalConfig()
		if err != nil {
			return nil, err
		}
		return &paypalGateway{cfg: cfg, currency: currency}, nil
	case constants.PaymentMethodStripe:
		cfg, currency, err := f.StripeConfig()
		if err != nil {
			return nil, err
		}
		return &stripeGateway{cfg: cfg, currency: currency}, nil
	default:
		// 话费支付没有可用的服务商实现
		return nil, ErrPaymentMethodUnavailable
	}
}

// AlipayConfig 解析支付宝配置
func (f *GatewayFactory) AlipayConfig() (*alipay.Config, string, error) {
	options, currency, err := f.providerOptions(f.payment.Alipay, constants.CurrencyCNY, map[string]string{
		"notify_url": f.publicBase + AlipayNotifyPath,
		"return_url": f.frontendURL,
	})
	if err != nil {
		return nil, "", err
	}
	cfg, err := alipay.ParseConfig(options)
	if err == nil {
		err = alipay.ValidateConfig(cfg)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPaymentMethodUnavailable, err)
	}
	return cfg, currency, nil
}

// WechatConfig 解析微信支付配置
func (f *GatewayFactory) WechatConfig() (*wechatpay.Config, string, error) {
	options, _, err := f.providerOptions(f.payment.Wechat, constants.CurrencyCNY, map[string]string{
		"notify_url": f.publicBase + WechatNotifyPath,
	})
	if err != nil {
		return nil, "", err
	}
	cfg, err := wechatpay.ParseConfig(options)
	if err == nil {
		err = wechatpay.ValidateConfig(cfg)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPaymentMethodUnavailable, err)
	}
	// Native 支付仅支持人民币
	return cfg, constants.CurrencyCNY, nil
}

// PaypalConfig 解析 PayPal 配置
func (f *GatewayFactory) PaypalConfig() (*paypal.Config, string, error) {
	options, currency, err := f.providerOptions(f.payment.Paypal, constants.CurrencyUSD, map[string]string{
		"return_url": f.frontendURL,
		"cancel_url": f.frontendURL,
	})
	if err != nil {
		return nil, "", err
	}
	cfg, err := paypal.ParseConfig(options)
	if err == nil {
		err = paypal.ValidateConfig(cfg)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPaymentMethodUnavailable, err)
	}
	return cfg, currency, nil
}

// StripeConfig 解析 Stripe 配置
func (f *GatewayFactory) StripeConfig() (*stripe.Config, string, error) {
	options, currency, err := f.providerOptions(f.payment.Stripe, constants.CurrencyUSD, map[string]string{
		"success_url": f.frontendURL,
		"cancel_url":  f.frontendURL,
	})
	if err != nil {
		return nil, "", err
	}
	cfg, err := stripe.ParseConfig(options)
	if err == nil {
		err = stripe.ValidateConfig(cfg)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPaymentMethodUnavailable, err)
	}
	return cfg, currency, nil
}

// StripeWebhookConfig 验签只依赖 webhook_secret，不要求下单用的回跳地址
func (f *GatewayFactory) StripeWebhookConfig() (*stripe.Config, error) {
	options, _, err := f.providerOptions(f.payment.Stripe, constants.CurrencyUSD, nil)
	if err != nil {
		return nil, err
	}
	cfg, err := stripe.ParseConfig(options)
	if err == nil && cfg.WebhookSecret == "" {
		err = fmt.Errorf("%w: webhook_secret is required", stripe.ErrConfigInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentMethodUnavailable, err)
	}
	return cfg, nil
}

func (f *GatewayFactory) providerOptions(provider config.ProviderConfig, fallbackCurrency string, defaults map[string]string) (map[string]interface{}, string, error) {
	if !provider.Enabled {
		return nil, "", ErrPaymentMethodUnavailable
	}
	options := make(map[string]interface{}, len(provider.Options)+len(defaults))
	for key, value := range provider.Options {
		options[strings.ToLower(key)] = value
	}
	for key, value := range defaults {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if existing, ok := options[key].(string); ok && strings.TrimSpace(existing) != "" {
			continue
		}
		options[key] = value
	}
	currency := strings.ToUpper(strings.TrimSpace(provider.Currency))
	if currency == "" {
		currency = fallbackCurrency
	}
	return options, currency, nil
}

type alipayGateway struct {
	cfg      *alipay.Config
	currency string
}

func (g *alipayGateway) Method() string   { return constants.PaymentMethodAlipay }
func (g *alipayGateway) Currency() string { return g.currency }

func (g *alipayGateway) CreatePayment(ctx context.Context, input GatewayCreateInput) (*GatewayCreateResult, error) {
	timeout := ""
	if !input.ExpiresAt.IsZero() {
		minutes := int(time.Until(input.ExpiresAt).Minutes())
		if minutes < 1 {
			minutes = 1
		}
		timeout = fmt.Sprintf("%dm", minutes)
	}
	result, err := alipay.CreatePayment(ctx, g.cfg, alipay.CreateInput{
		OrderID:        input.OrderID,
		AmountMinor:    input.AmountMinor,
		Subject:        input.Subject,
		ReturnURL:      input.ReturnURL,
		TimeoutExpress: timeout,
		Passback:       buildPassback(input.UserID, input.Plan),
	})
	if err != nil {
		return nil, err
	}
	return &GatewayCreateResult{
		InteractionMode: g.cfg.InteractionMode(),
		PaymentURL:      result.PayURL,
		PaymentForm:     result.PayForm,
		QRCode:          result.QRCode,
		ProviderRef:     result.TradeNo,
		Raw:             result.Raw,
	}, nil
}

type wechatGateway struct {
	cfg      *wechatpay.Config
	currency string
}

func (g *wechatGateway) Method() string   { return constants.PaymentMethodWechat }
func (g *wechatGateway) Currency() string { return g.currency }

func (g *wechatGateway) CreatePayment(ctx context.Context, input GatewayCreateInput) (*GatewayCreateResult, error) {
	var expiresAt *time.Time
	if !input.ExpiresAt.IsZero() {
		expiresAt = &input.ExpiresAt
	}
	result, err := wechatpay.CreateNativePayment(ctx, g.cfg, wechatpay.CreateInput{
		OrderID:     input.OrderID,
		AmountMinor: input.AmountMinor,
		Description: input.Subject,
		ClientIP:    input.ClientIP,
		ExpiresAt:   expiresAt,
		Passback:    buildPassback(input.UserID, input.Plan),
	})
	if err != nil {
		return nil, err
	}
	return &GatewayCreateResult{
		InteractionMode: constants.PaymentInteractionQR,
		PaymentURL:      result.CodeURL,
		QRCode:          result.CodeURL,
		Raw:             result.Raw,
	}, nil
}

type paypalGateway struct {
	cfg      *paypal.Config
	currency string
}

func (g *paypalGateway) Method() string   { return constants.PaymentMethodPaypal }
func (g *paypalGateway) Currency() string { return g.currency }

func (g *paypalGateway) CreatePayment(ctx context.Context, input GatewayCreateInput) (*GatewayCreateResult, error) {
	result, err := paypal.CreateOrder(ctx, g.cfg, paypal.CreateInput{
		OrderID:     input.OrderID,
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Description: input.Subject,
		ReturnURL:   input.ReturnURL,
		UserID:      input.UserID,
		Plan:        input.Plan,
	})
	if err != nil {
		return nil, err
	}
	return &GatewayCreateResult{
		InteractionMode: constants.PaymentInteractionRedirect,
		PaymentURL:      result.ApprovalURL,
		ProviderRef:     result.PaypalOrderID,
		Raw:             result.Raw,
	}, nil
}

type stripeGateway struct {
	cfg      *stripe.Config
	currency string
}

func (g *stripeGateway) Method() string   { return constants.PaymentMethodStripe }
func (g *stripeGateway) Currency() string { return g.currency }

func (g *stripeGateway) CreatePayment(ctx context.Context, input GatewayCreateInput) (*GatewayCreateResult, error) {
	var expiresAt *time.Time
	if !input.ExpiresAt.IsZero() {
		expiresAt = &input.ExpiresAt
	}
	result, err := stripe.CreateCheckoutSession(ctx, g.cfg, stripe.CreateInput{
		OrderID:     input.OrderID,
		AmountMinor: input.AmountMinor,
		Currency:    input.Currency,
		Description: input.Subject,
		SuccessURL:  input.ReturnURL,
		UserID:      input.UserID,
		Plan:        input.Plan,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, err
	}
	return &GatewayCreateResult{
		InteractionMode: constants.PaymentInteractionRedirect,
		PaymentURL:      result.URL,
		ProviderRef:     result.SessionID,
		Raw:             result.Raw,
	}, nil
}

func buildPassback(userID, plan string) map[string]string {
	return map[string]string{
		"user_id": userID,
		"plan":    plan,
	}
}

// isGatewayConfigError 判断网关错误是否源于配置缺失
func isGatewayConfigError(err error) bool {
	return errors.Is(err, alipay.ErrConfigInvalid) ||
		errors.Is(err, wechatpay.ErrConfigInvalid) ||
		errors.Is(err, paypal.ErrConfigInvalid) ||
		errors.Is(err, stripe.ErrConfigInvalid)
}
