package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testStripeWebhookSecret = "whsec_test_service"

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	// 内存库只允许单连接写入，保证并发用例串行落库
	sqlDB.SetMaxOpenConns(1)
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	models.DB = db
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func testPricingConfig() config.PricingConfig {
	return config.PricingConfig{
		Plans: map[string]config.PlanPriceConfig{
			constants.PlanFree: {Name: "Free"},
			constants.PlanProMonthly: {
				Name:   "Pro Monthly",
				Prices: map[string]int64{"cny": 2999, "usd": 499},
			},
			constants.PlanProYearly: {
				Name:   "Pro Yearly",
				Prices: map[string]int64{"CNY": 29900, "USD": 4999},
			},
		},
	}
}

func testPaymentConfig() (config.AppConfig, config.PaymentConfig) {
	app := config.AppConfig{
		Name:          "quizmate",
		PublicBaseURL: "https://api.quizmate.test",
		FrontendURL:   "https://quizmate.test/payment/result",
	}
	payment := config.PaymentConfig{
		Alipay: config.ProviderConfig{
			Enabled: true,
			Options: map[string]interface{}{
				"app_id":            "2021000000000001",
				"private_key":       "test-private-key",
				"alipay_public_key": "test-public-key",
			},
		},
		Stripe: config.ProviderConfig{
			Enabled:  true,
			Currency: "usd",
			Options: map[string]interface{}{
				"secret_key":     "sk_test_service",
				"webhook_secret": testStripeWebhookSecret,
			},
		},
	}
	return app, payment
}

type fakeGateway struct {
	mu       sync.Mutex
	method   string
	currency string
	result   *GatewayCreateResult
	err      error
	inputs   []GatewayCreateInput
}

func (g *fakeGateway) Method() string   { return g.method }
func (g *fakeGateway) Currency() string { return g.currency }

func (g *fakeGateway) CreatePayment(ctx context.Context, input GatewayCreateInput) (*GatewayCreateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append(g.inputs, input)
	if g.err != nil {
		return nil, g.err
	}
	if g.result != nil {
		return g.result, nil
	}
	return &GatewayCreateResult{
		InteractionMode: constants.PaymentInteractionRedirect,
		PaymentURL:      "https://pay.example.com/" + input.OrderID,
		ProviderRef:     "ref-" + input.OrderID,
	}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inputs)
}

type fakeGatewayProvider struct {
	gateways map[string]*fakeGateway
}

func (p *fakeGatewayProvider) Gateway(method string) (PaymentGateway, error) {
	if !IsKnownPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}
	gateway, ok := p.gateways[method]
	if !ok {
		return nil, ErrPaymentMethodUnavailable
	}
	return gateway, nil
}

func newFakeGatewayProvider() *fakeGatewayProvider {
	return &fakeGatewayProvider{gateways: map[string]*fakeGateway{
		constants.PaymentMethodAlipay: {method: constants.PaymentMethodAlipay, currency: constants.CurrencyCNY},
		constants.PaymentMethodWechat: {
			method:   constants.PaymentMethodWechat,
			currency: constants.CurrencyCNY,
			result: &GatewayCreateResult{
				InteractionMode: constants.PaymentInteractionQR,
				PaymentURL:      "weixin://wxpay/bizpayurl?pr=test",
				QRCode:          "weixin://wxpay/bizpayurl?pr=test",
			},
		},
		constants.PaymentMethodPaypal: {method: constants.PaymentMethodPaypal, currency: constants.CurrencyUSD},
		constants.PaymentMethodStripe: {method: constants.PaymentMethodStripe, currency: constants.CurrencyUSD},
	}}
}

type serviceFixture struct {
	db        *gorm.DB
	orders    *OrderService
	reconcile *ReconcileService
	gateways  *fakeGatewayProvider
	orderRepo *repository.GormOrderRepository
	issueRepo *repository.GormReconcileIssueRepository
	now       time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := setupServiceTestDB(t)
	catalog := NewPlanCatalog(testPricingConfig())
	gateways := newFakeGatewayProvider()
	orderRepo := repository.NewOrderRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	issueRepo := repository.NewReconcileIssueRepository(db)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	orders := NewOrderService(orderRepo, profileRepo, catalog, gateways, nil, config.OrderConfig{PaymentExpireMinutes: 30})
	orders.now = func() time.Time { return now }
	reconcile := NewReconcileService(orderRepo, profileRepo, txnRepo, issueRepo, catalog, nil, config.ReconcileConfig{})
	reconcile.now = func() time.Time { return now }

	return &serviceFixture{
		db:        db,
		orders:    orders,
		reconcile: reconcile,
		gateways:  gateways,
		orderRepo: orderRepo,
		issueRepo: issueRepo,
		now:       now,
	}
}

func (f *serviceFixture) createOrder(t *testing.T, userID, plan, method string) *models.Order {
	t.Helper()
	result, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID:        userID,
		Plan:          plan,
		PaymentMethod: method,
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return result.Order
}

func (f *serviceFixture) countRows(t *testing.T, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count rows failed: %v", err)
	}
	return count
}

func paidEvent(order *models.Order, transactionID string) *VerifiedEvent {
	return &VerifiedEvent{
		Provider:      order.PaymentMethod,
		EventType:     "TRADE_SUCCESS",
		OrderID:       order.ID,
		TransactionID: transactionID,
		Status:        constants.OrderStatusPaid,
		AmountMinor:   order.Amount,
		Currency:      order.Currency,
		Passback: map[string]string{
			"user_id": order.UserID,
			"plan":    order.PlanType,
		},
	}
}
