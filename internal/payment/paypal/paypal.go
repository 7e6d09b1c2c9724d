package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid       = errors.New("paypal config invalid")
	ErrAuthFailed          = errors.New("paypal auth failed")
	ErrRequestFailed       = errors.New("paypal request failed")
	ErrResponseInvalid     = errors.New("paypal response invalid")
	ErrWebhookVerifyFailed = errors.New("paypal webhook verify failed")
)

const (
	defaultSandboxBaseURL = "https://api-m.sandbox.paypal.com"
	defaultTimeout        = 12 * time.Second
	passbackSeparator     = "|"
)

// PayPal 事件类型
const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	EventOrderVoided      = "CHECKOUT.ORDER.VOIDED"
)

// Config PayPal 渠道配置。
type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	BaseURL      string `json:"base_url"`
	ReturnURL    string `json:"return_url"`
	CancelURL    string `json:"cancel_url"`
	WebhookID    string `json:"webhook_id"`
	BrandName    string `json:"brand_name"`
	Locale       string `json:"locale"`
}

// CreateInput 创建 PayPal 订单输入。
type CreateInput struct {
	OrderID     string
	AmountMinor int64
	Currency    string
	Description string
	ReturnURL   string
	CancelURL   string
	UserID      string
	Plan        string
}

// CreateResult 创建 PayPal 订单返回。
type CreateResult struct {
	PaypalOrderID string
	ApprovalURL   string
	Status        string
	Raw           map[string]interface{}
}

// CaptureResult 捕获订单返回。
type CaptureResult struct {
	PaypalOrderID string
	CaptureID     string
	Status        string
	AmountMinor   int64
	Currency      string
	PaidAt        *time.Time
	Raw           map[string]interface{}
}

// WebhookEvent PayPal Webhook 事件。
type WebhookEvent struct {
	ID         string                 `json:"id"`
	EventType  string                 `json:"event_type"`
	CreateTime string                 `json:"create_time"`
	Resource   map[string]interface{} `json:"resource"`
	Raw        map[string]interface{}
}

// ParseConfig 解析配置。
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("%w: client_id is required", ErrConfigInvalid)
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("%w: client_secret is required", ErrConfigInvalid)
	}
	for name, value := range map[string]string{"base_url": cfg.BaseURL, "return_url": cfg.ReturnURL, "cancel_url": cfg.CancelURL} {
		if value == "" {
			return fmt.Errorf("%w: %s is required", ErrConfigInvalid, name)
		}
		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("%w: %s is invalid", ErrConfigInvalid, name)
		}
	}
	return nil
}

// CreateOrder 创建 PayPal 订单，invoice_id 记录本地订单号，custom_id 透传用户与套餐。
func CreateOrder(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if strings.TrimSpace(input.OrderID) == "" || input.AmountMinor <= 0 || currency == "" {
		return nil, fmt.Errorf("%w: order input is invalid", ErrConfigInvalid)
	}
	returnURL := strings.TrimSpace(input.ReturnURL)
	if returnURL == "" {
		returnURL = cfg.ReturnURL
	}
	cancelURL := strings.TrimSpace(input.CancelURL)
	if cancelURL == "" {
		cancelURL = cfg.CancelURL
	}

	token, err := getAccessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": input.OrderID,
				"invoice_id":   input.OrderID,
				"custom_id":    EncodePassback(input.UserID, input.Plan),
				"amount": map[string]string{
					"currency_code": currency,
					"value":         FormatAmount(input.AmountMinor),
				},
				"description": strings.TrimSpace(input.Description),
			},
		},
		"application_context": buildApplicationContext(cfg, returnURL, cancelURL),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
	}

	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodPost, "/v2/checkout/orders", token, body)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: create order status %d", ErrResponseInvalid, statusCode)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}

	result := &CreateResult{
		Raw:           raw,
		PaypalOrderID: strings.TrimSpace(readString(raw, "id")),
		Status:        strings.TrimSpace(readString(raw, "status")),
		ApprovalURL:   extractLinkByRel(raw, "approve"),
	}
	if result.PaypalOrderID == "" || result.ApprovalURL == "" {
		return nil, fmt.Errorf("%w: missing order id or approve url", ErrResponseInvalid)
	}
	return result, nil
}

// CaptureOrder 捕获买家已批准的 PayPal 订单。
func CaptureOrder(ctx context.Context, cfg *Config, paypalOrderID string) (*CaptureResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	paypalOrderID = strings.TrimSpace(paypalOrderID)
	if paypalOrderID == "" {
		return nil, fmt.Errorf("%w: order id is empty", ErrConfigInvalid)
	}

	token, err := getAccessToken(ctx, cfg)
	if err != nil {
		return nil, err
	}

	endpoint := "/v2/checkout/orders/" + url.PathEscape(paypalOrderID) + "/capture"
	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodPost, endpoint, token, []byte("{}"))
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: capture status %d", ErrResponseInvalid, statusCode)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}

	result := &CaptureResult{
		Raw:           raw,
		PaypalOrderID: strings.TrimSpace(readString(raw, "id")),
		Status:        strings.TrimSpace(readString(raw, "status")),
	}
	captures := readArray(raw, "purchase_units", "0", "payments", "captures")
	if len(captures) > 0 {
		if capture, ok := captures[0].(map[string]interface{}); ok {
			result.CaptureID = strings.TrimSpace(readString(capture, "id"))
			if status := strings.TrimSpace(readString(capture, "status")); status != "" {
				result.Status = status
			}
			result.AmountMinor, _ = ParseAmount(readString(capture, "amount", "value"))
			result.Currency = strings.ToUpper(strings.TrimSpace(readString(capture, "amount", "currency_code")))
			result.PaidAt = parseTime(readString(capture, "create_time"))
		}
	}
	if result.PaypalOrderID == "" {
		result.PaypalOrderID = paypalOrderID
	}
	if result.Status == "" {
		return nil, fmt.Errorf("%w: missing capture status", ErrResponseInvalid)
	}
	return result, nil
}

// VerifyWebhookSignature 通过 verify-webhook-signature 接口校验 Webhook 签名。
func VerifyWebhookSignature(ctx context.Context, cfg *Config, headers http.Header, body []byte) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if cfg.WebhookID == "" {
		return fmt.Errorf("%w: webhook_id is required", ErrConfigInvalid)
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: webhook body invalid", ErrWebhookVerifyFailed)
	}

	fields := map[string]string{
		"transmission_id":   strings.TrimSpace(headers.Get("Paypal-Transmission-Id")),
		"transmission_time": strings.TrimSpace(headers.Get("Paypal-Transmission-Time")),
		"cert_url":          strings.TrimSpace(headers.Get("Paypal-Cert-Url")),
		"auth_algo":         strings.TrimSpace(headers.Get("Paypal-Auth-Algo")),
		"transmission_sig":  strings.TrimSpace(headers.Get("Paypal-Transmission-Sig")),
	}
	for key, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: missing %s", ErrWebhookVerifyFailed, key)
		}
	}

	token, err := getAccessToken(ctx, cfg)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"webhook_id":    cfg.WebhookID,
		"webhook_event": json.RawMessage(body),
	}
	for key, value := range fields {
		payload[key] = value
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal verify payload failed", ErrWebhookVerifyFailed)
	}

	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodPost, "/v1/notifications/verify-webhook-signature", token, reqBody)
	if err != nil {
		return err
	}
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("%w: verify status %d", ErrWebhookVerifyFailed, statusCode)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("%w: decode verify response failed", ErrWebhookVerifyFailed)
	}
	if strings.ToUpper(strings.TrimSpace(readString(resp, "verification_status"))) != "SUCCESS" {
		return fmt.Errorf("%w: verify result is not success", ErrWebhookVerifyFailed)
	}
	return nil
}

// ParseWebhookEvent 解析 Webhook 事件。
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: webhook body is empty", ErrResponseInvalid)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: webhook body invalid", ErrResponseInvalid)
	}
	event := &WebhookEvent{
		ID:         strings.TrimSpace(readString(raw, "id")),
		EventType:  strings.ToUpper(strings.TrimSpace(readString(raw, "event_type"))),
		CreateTime: strings.TrimSpace(readString(raw, "create_time")),
		Raw:        raw,
		Resource:   map[string]interface{}{},
	}
	if resource, ok := raw["resource"].(map[string]interface{}); ok {
		event.Resource = resource
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("%w: event_type is missing", ErrResponseInvalid)
	}
	return event, nil
}

// LocalOrderID 提取本地订单号（capture 资源直接携带 invoice_id，订单资源在 purchase_units 中）。
func (e *WebhookEvent) LocalOrderID() string {
	if e == nil {
		return ""
	}
	if val := strings.TrimSpace(readString(e.Resource, "invoice_id")); val != "" {
		return val
	}
	for _, key := range []string{"invoice_id", "reference_id"} {
		if val := strings.TrimSpace(readString(e.Resource, "purchase_units", "0", key)); val != "" {
			return val
		}
	}
	return ""
}

// PaypalOrderID 提取 PayPal 侧订单号。
func (e *WebhookEvent) PaypalOrderID() string {
	if e == nil {
		return ""
	}
	if val := strings.TrimSpace(readString(e.Resource, "supplementary_data", "related_ids", "order_id")); val != "" {
		return val
	}
	if strings.HasPrefix(e.EventType, "CHECKOUT.ORDER") {
		return strings.TrimSpace(readString(e.Resource, "id"))
	}
	return ""
}

// TransactionID 返回支付渠道流水号，capture 事件为 capture id。
func (e *WebhookEvent) TransactionID() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(readString(e.Resource, "id"))
}

// Passback 提取 custom_id 中的透传参数。
func (e *WebhookEvent) Passback() map[string]string {
	if e == nil {
		return nil
	}
	raw := strings.TrimSpace(readString(e.Resource, "custom_id"))
	if raw == "" {
		raw = strings.TrimSpace(readString(e.Resource, "purchase_units", "0", "custom_id"))
	}
	return DecodePassback(raw)
}

// CaptureAmount 提取捕获金额（最小货币单位）和币种。
func (e *WebhookEvent) CaptureAmount() (int64, string, error) {
	if e == nil {
		return 0, "", fmt.Errorf("%w: event is nil", ErrResponseInvalid)
	}
	value := readString(e.Resource, "amount", "value")
	currency := strings.ToUpper(strings.TrimSpace(readString(e.Resource, "amount", "currency_code")))
	amount, err := ParseAmount(value)
	if err != nil {
		return 0, currency, err
	}
	return amount, currency, nil
}

// PaidAt 提取支付时间。
func (e *WebhookEvent) PaidAt() *time.Time {
	if e == nil {
		return nil
	}
	for _, key := range []string{"create_time", "update_time"} {
		if parsed := parseTime(readString(e.Resource, key)); parsed != nil {
			return parsed
		}
	}
	return parseTime(e.CreateTime)
}

// ToOrderStatus 将 PayPal 事件映射为订单状态，空字符串表示不触发流转。
func ToOrderStatus(eventType string) string {
	switch strings.ToUpper(strings.TrimSpace(eventType)) {
	case EventCaptureCompleted:
		return constants.OrderStatusPaid
	case EventCaptureDenied, EventOrderVoided:
		return constants.OrderStatusCancelled
	default:
		return ""
	}
}

// EncodePassback 将用户与套餐编码进 custom_id（最长 127 字符）。
func EncodePassback(userID, plan string) string {
	return strings.TrimSpace(userID) + passbackSeparator + strings.TrimSpace(plan)
}

// DecodePassback 解析 custom_id。
func DecodePassback(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.SplitN(raw, passbackSeparator, 2)
	result := map[string]string{"user_id": parts[0]}
	if len(parts) == 2 {
		result["plan"] = parts[1]
	}
	return result
}

// FormatAmount 最小货币单位转金额字符串。
func FormatAmount(amountMinor int64) string {
	return decimal.New(amountMinor, -2).StringFixed(2)
}

// ParseAmount 金额字符串转最小货币单位。
func ParseAmount(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: amount is empty", ErrResponseInvalid)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: amount is invalid", ErrResponseInvalid)
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultSandboxBaseURL
	}
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
	c.CancelURL = strings.TrimSpace(c.CancelURL)
	c.WebhookID = strings.TrimSpace(c.WebhookID)
	c.BrandName = strings.TrimSpace(c.BrandName)
	c.Locale = strings.TrimSpace(c.Locale)
}

func buildApplicationContext(cfg *Config, returnURL, cancelURL string) map[string]string {
	ctx := map[string]string{
		"return_url":          returnURL,
		"cancel_url":          cancelURL,
		"user_action":         "PAY_NOW",
		"shipping_preference": "NO_SHIPPING",
	}
	if cfg.BrandName != "" {
		ctx["brand_name"] = cfg.BrandName
	}
	if cfg.Locale != "" {
		ctx["locale"] = cfg.Locale
	}
	return ctx
}

func getAccessToken(ctx context.Context, cfg *Config) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	values := url.Values{}
	values.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build token request failed", ErrAuthFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request token failed", ErrAuthFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read token response failed", ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: token status %d", ErrAuthFailed, resp.StatusCode)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode token response failed", ErrAuthFailed)
	}
	token := strings.TrimSpace(readString(parsed, "access_token"))
	if token == "" {
		return "", fmt.Errorf("%w: access_token is empty", ErrAuthFailed)
	}
	return token, nil
}

func doJSONRequest(ctx context.Context, cfg *Config, method, endpoint, token string, body []byte) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: http request failed", ErrRequestFailed)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, nil
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &parsed
}

func extractLinkByRel(raw map[string]interface{}, rel string) string {
	links, ok := raw["links"].([]interface{})
	if !ok {
		return ""
	}
	for _, item := range links {
		link, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(readString(link, "rel")), rel) {
			continue
		}
		if href := strings.TrimSpace(readString(link, "href")); href != "" {
			return href
		}
	}
	return ""
}

func walk(raw map[string]interface{}, path ...string) interface{} {
	if raw == nil {
		return nil
	}
	var current interface{} = raw
	for _, seg := range path {
		if idx, err := strconv.Atoi(seg); err == nil {
			arr, ok := current.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return nil
			}
			current = arr[idx]
			continue
		}
		next, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = next[seg]
	}
	return current
}

func readString(raw map[string]interface{}, path ...string) string {
	current := walk(raw, path...)
	if current == nil {
		return ""
	}
	if str, ok := current.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", current)
}

func readArray(raw map[string]interface{}, path ...string) []interface{} {
	arr, _ := walk(raw, path...).([]interface{})
	return arr
}
