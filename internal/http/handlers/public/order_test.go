package public

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/payment/stripe"
	"github.com/qingyi232/QuizMate1-sub002/internal/provider"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_handler_test"

type stubGateway struct {
	method   string
	currency string
}

func (g *stubGateway) Method() string   { return g.method }
func (g *stubGateway) Currency() string { return g.currency }

func (g *stubGateway) CreatePayment(ctx context.Context, input service.GatewayCreateInput) (*service.GatewayCreateResult, error) {
	return &service.GatewayCreateResult{
		InteractionMode: constants.PaymentInteractionRedirect,
		PaymentURL:      "https://checkout.example.com/" + input.OrderID,
		ProviderRef:     "cs_" + input.OrderID,
	}, nil
}

type stubGatewayProvider struct{}

func (stubGatewayProvider) Gateway(method string) (service.PaymentGateway, error) {
	switch method {
	case constants.PaymentMethodStripe:
		return &stubGateway{method: method, currency: constants.CurrencyUSD}, nil
	case constants.PaymentMethodAlipay:
		return &stubGateway{method: method, currency: constants.CurrencyCNY}, nil
	}
	if service.IsKnownPaymentMethod(method) {
		return nil, service.ErrPaymentMethodUnavailable
	}
	return nil, service.ErrInvalidPaymentMethod
}

func (stubGatewayProvider) EnabledMethods() []string {
	return []string{constants.PaymentMethodAlipay, constants.PaymentMethodStripe}
}

type handlerFixture struct {
	db     *gorm.DB
	engine *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	models.DB = db
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := &config.Config{
		App: config.AppConfig{
			PublicBaseURL: "https://api.quizmate.test",
			FrontendURL:   "https://quizmate.test/payment/result",
		},
		Pricing: config.PricingConfig{Plans: map[string]config.PlanPriceConfig{
			constants.PlanProMonthly: {Name: "Pro Monthly", PeriodDays: 30, Prices: map[string]int64{"CNY": 2999, "USD": 499}},
		}},
		Payment: config.PaymentConfig{
			Alipay: config.ProviderConfig{Enabled: true, Options: map[string]interface{}{
				"app_id":            "2021000000000001",
				"private_key":       "test-private-key",
				"alipay_public_key": "test-public-key",
			}},
			Stripe: config.ProviderConfig{Enabled: true, Currency: "USD", Options: map[string]interface{}{
				"secret_key":     "sk_test_handler",
				"webhook_secret": testWebhookSecret,
			}},
		},
	}
	c := &provider.Container{
		Config:             cfg,
		OrderRepo:          repository.NewOrderRepository(db),
		ProfileRepo:        repository.NewProfileRepository(db),
		TransactionRepo:    repository.NewTransactionRepository(db),
		ReconcileIssueRepo: repository.NewReconcileIssueRepository(db),
	}
	c.PlanCatalog = service.NewPlanCatalog(cfg.Pricing)
	c.GatewayFactory = service.NewGatewayFactory(cfg.App, cfg.Payment)
	c.OrderService = service.NewOrderService(c.OrderRepo, c.ProfileRepo, c.PlanCatalog, stubGatewayProvider{}, nil, cfg.Order)
	c.ReconcileService = service.NewReconcileService(c.OrderRepo, c.ProfileRepo, c.TransactionRepo, c.ReconcileIssueRepo, c.PlanCatalog, nil, cfg.Reconcile)
	c.CallbackVerifier = service.NewCallbackVerifier(c.GatewayFactory)
	c.CaptureService = service.NewPaymentCaptureService(c.OrderService, c.GatewayFactory, c.ReconcileService)

	h := New(c)
	r := gin.New()
	// 测试中以请求头模拟已登录用户
	user := r.Group("/api/v1", func(ctx *gin.Context) {
		if uid := ctx.GetHeader("X-Test-User"); uid != "" {
			ctx.Set("user_id", uid)
		}
		ctx.Next()
	})
	user.POST("/orders", h.CreateOrder)
	user.GET("/orders", h.ListOrders)
	user.GET("/orders/:id", h.GetOrder)
	user.GET("/subscription", h.GetSubscription)
	r.GET("/api/v1/plans", h.GetPlans)
	r.POST(service.AlipayNotifyPath, h.AlipayCallback)
	r.POST(service.StripeWebhookPath, h.StripeWebhook)
	return &handlerFixture{db: db, engine: r}
}

func (f *handlerFixture) do(t *testing.T, method, path, userID string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	ErrorCode  string          `json:"error_code"`
	Data       json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v body=%s", err, w.Body.String())
	}
	return resp
}

func (f *handlerFixture) createOrder(t *testing.T, userID, method string) CreateOrderResponse {
	t.Helper()
	body := []byte(`{"plan":"pro_monthly","payment_method":"` + method + `"}`)
	w := f.do(t, http.MethodPost, "/api/v1/orders", userID, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("create order status want 200 got %d body=%s", w.Code, w.Body.String())
	}
	var created CreateOrderResponse
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &created); err != nil {
		t.Fatalf("unmarshal created order failed: %v", err)
	}
	return created
}

func TestCreateOrderEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	created := f.createOrder(t, "user-123", constants.PaymentMethodStripe)
	if !created.Success || created.Amount != 499 || created.Currency != constants.CurrencyUSD {
		t.Fatalf("unexpected created order: %+v", created)
	}
	if !strings.HasPrefix(created.OrderID, constants.OrderPrefixStripe) || created.PaymentURL == "" {
		t.Fatalf("unexpected order id or url: %+v", created)
	}

	// 未指定支付方式时取第一个已启用的方式
	w := f.do(t, http.MethodPost, "/api/v1/orders", "user-123", []byte(`{"plan":"pro_monthly"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("plan-only create want 200 got %d body=%s", w.Code, w.Body.String())
	}
	var planOnly CreateOrderResponse
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &planOnly); err != nil {
		t.Fatalf("unmarshal plan-only order failed: %v", err)
	}
	if !strings.HasPrefix(planOnly.OrderID, constants.OrderPrefixAlipay) || planOnly.Currency != constants.CurrencyCNY || planOnly.Amount != 2999 {
		t.Fatalf("plan-only order should use alipay: %+v", planOnly)
	}

	cases := []struct {
		name      string
		userID    string
		body      string
		status    int
		errorCode string
	}{
		{name: "unknown plan without method", userID: "user-123", body: `{"plan":"gold"}`, status: http.StatusBadRequest, errorCode: "invalid_plan"},
		{name: "invalid plan", userID: "user-123", body: `{"plan":"gold","payment_method":"stripe"}`, status: http.StatusBadRequest, errorCode: "invalid_plan"},
		{name: "free plan", userID: "user-123", body: `{"plan":"free","payment_method":"stripe"}`, status: http.StatusBadRequest, errorCode: "invalid_plan"},
		{name: "invalid method", userID: "user-123", body: `{"plan":"pro_monthly","payment_method":"bitcoin"}`, status: http.StatusBadRequest, errorCode: "invalid_payment_method"},
		{name: "unavailable method", userID: "user-123", body: `{"plan":"pro_monthly","payment_method":"phone"}`, status: http.StatusBadRequest, errorCode: "payment_method_unavailable"},
		{name: "empty body", userID: "user-123", body: `{}`, status: http.StatusBadRequest, errorCode: "invalid_plan"},
		{name: "malformed body", userID: "user-123", body: `{"plan":`, status: http.StatusBadRequest, errorCode: "bad_request"},
		{name: "anonymous", userID: "", body: `{"plan":"pro_monthly","payment_method":"stripe"}`, status: http.StatusUnauthorized, errorCode: "unauthenticated"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/orders", tc.userID, []byte(tc.body), nil)
			if w.Code != tc.status {
				t.Fatalf("status want %d got %d body=%s", tc.status, w.Code, w.Body.String())
			}
			resp := decodeEnvelope(t, w)
			if resp.ErrorCode != tc.errorCode || resp.StatusCode != tc.status {
				t.Fatalf("error want %d/%s got %d/%s", tc.status, tc.errorCode, resp.StatusCode, resp.ErrorCode)
			}
		})
	}
}

func TestGetOrderIsScopedToOwner(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createOrder(t, "user-a", constants.PaymentMethodAlipay)

	w := f.do(t, http.MethodGet, "/api/v1/orders/"+created.OrderID, "user-a", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner query want 200 got %d", w.Code)
	}
	var order models.Order
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &order); err != nil {
		t.Fatalf("unmarshal order failed: %v", err)
	}
	if order.Status != constants.OrderStatusPending || order.Amount != 2999 {
		t.Fatalf("unexpected order view: %+v", order)
	}
	if strings.Contains(w.Body.String(), "checkout.example.com") {
		t.Fatalf("payment url must not leak in status query")
	}

	w = f.do(t, http.MethodGet, "/api/v1/orders/"+created.OrderID, "user-b", nil, nil)
	if w.Code != http.StatusNotFound || decodeEnvelope(t, w).ErrorCode != "order_not_found" {
		t.Fatalf("foreign query want 404 order_not_found got %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/v1/orders?page=1&page_size=10", "user-b", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total":0`) {
		t.Fatalf("foreign list should be empty: %d %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodGet, "/api/v1/orders?status=unknown", "user-a", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown status filter want 400 got %d", w.Code)
	}
}

func TestStripeWebhookEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createOrder(t, "user-123", constants.PaymentMethodStripe)

	now := time.Now()
	body, _ := json.Marshal(map[string]interface{}{
		"id":   "evt_handler_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":              "checkout.session",
				"id":                  "cs_" + created.OrderID,
				"client_reference_id": created.OrderID,
				"payment_intent":      "pi_handler_1",
				"payment_status":      "paid",
				"currency":            "usd",
				"amount_total":        499,
				"created":             now.Unix(),
				"metadata": map[string]interface{}{
					"order_id": created.OrderID,
					"user_id":  "user-123",
					"plan":     constants.PlanProMonthly,
				},
			},
		},
	})
	signed := map[string]string{"Stripe-Signature": stripe.SignPayload(testWebhookSecret, now.Unix(), body)}

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, service.StripeWebhookPath, "", body, signed)
		if w.Code != http.StatusOK || w.Body.String() != constants.WebhookAckSuccess {
			t.Fatalf("delivery %d want 200 success got %d %s", i+1, w.Code, w.Body.String())
		}
	}
	var txnCount int64
	f.db.Model(&models.Transaction{}).Count(&txnCount)
	if txnCount != 1 {
		t.Fatalf("replayed webhook should append one transaction, got %d", txnCount)
	}

	w := f.do(t, http.MethodGet, "/api/v1/subscription", "user-123", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"is_active":true`) {
		t.Fatalf("subscription should be active: %d %s", w.Code, w.Body.String())
	}

	forged := map[string]string{"Stripe-Signature": stripe.SignPayload("whsec_attacker", now.Unix(), body)}
	w = f.do(t, http.MethodPost, service.StripeWebhookPath, "", body, forged)
	if w.Code != http.StatusBadRequest || w.Body.String() != constants.WebhookAckFail {
		t.Fatalf("forged webhook want 400 fail got %d %s", w.Code, w.Body.String())
	}
}

func TestAlipayCallbackRejectsForgedSignature(t *testing.T) {
	f := newHandlerFixture(t)
	created := f.createOrder(t, "user-123", constants.PaymentMethodAlipay)

	form := url.Values{}
	form.Set("app_id", "2021000000000001")
	form.Set("out_trade_no", created.OrderID)
	form.Set("trade_no", "2026030122001")
	form.Set("trade_status", constants.AlipayTradeStatusSuccess)
	form.Set("total_amount", "29.99")
	form.Set("sign_type", "RSA2")
	form.Set("sign", "Zm9yZ2Vk")

	req := httptest.NewRequest(http.MethodPost, service.AlipayNotifyPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != constants.AlipayCallbackFail {
		t.Fatalf("forged alipay callback want fail got %d %s", w.Code, w.Body.String())
	}

	var order models.Order
	f.db.First(&order, "id = ?", created.OrderID)
	if order.Status != constants.OrderStatusPending {
		t.Fatalf("forged callback must not change order, got %s", order.Status)
	}
}

func TestGetPlansListsEnabledMethods(t *testing.T) {
	f := newHandlerFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/plans", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("plans want 200 got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, constants.PlanProMonthly) || !strings.Contains(body, constants.PaymentMethodStripe) {
		t.Fatalf("unexpected plans body: %s", body)
	}
	if strings.Contains(body, constants.PaymentMethodPaypal) {
		t.Fatalf("disabled paypal must not be listed: %s", body)
	}
}
