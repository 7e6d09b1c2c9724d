package service

import (
	"context"
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"
)

func newTestAuthService(t *testing.T) (*AuthService, *repository.GormAdminRepository) {
	t.Helper()
	db := setupServiceTestDB(t)
	cfg := &config.Config{
		JWT:     config.JWTConfig{SecretKey: "admin-secret", ExpireHours: 2},
		UserJWT: config.JWTConfig{SecretKey: "user-secret", ExpireHours: 24},
	}
	repo := repository.NewAdminRepository(db)
	return NewAuthService(cfg, repo), repo
}

func TestAdminLoginAndLogout(t *testing.T) {
	svc, repo := newTestAuthService(t)
	hash, err := svc.HashPassword("S3cure!pass")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if err := repo.Create(&models.Admin{Username: "ops", PasswordHash: hash, IsSuper: true}); err != nil {
		t.Fatalf("create admin failed: %v", err)
	}

	if _, _, _, err := svc.Login("ops", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password want invalid credentials got %v", err)
	}
	if _, _, _, err := svc.Login("ghost", "S3cure!pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown admin want invalid credentials got %v", err)
	}

	admin, token, expiresAt, err := svc.Login("ops", "S3cure!pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if expiresAt.Before(time.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}
	claims, err := svc.ParseJWT(token)
	if err != nil {
		t.Fatalf("parse jwt failed: %v", err)
	}
	if claims.AdminID != admin.ID || claims.Username != "ops" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := svc.ResolveAdminState(context.Background(), claims); err != nil {
		t.Fatalf("fresh token should resolve: %v", err)
	}

	if err := svc.Logout(admin.ID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := svc.ResolveAdminState(context.Background(), claims); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token should be revoked after logout, got %v", err)
	}
	stored, _ := repo.GetByID(admin.ID)
	if stored.LastLoginAt == nil {
		t.Fatalf("last login should be recorded")
	}
}

func TestParseUserJWT(t *testing.T) {
	svc, _ := newTestAuthService(t)
	token, err := svc.GenerateUserJWT("user-42", time.Hour)
	if err != nil {
		t.Fatalf("generate user jwt failed: %v", err)
	}
	userID, err := svc.ParseUserJWT(token)
	if err != nil || userID != "user-42" {
		t.Fatalf("parse user jwt: id=%s err=%v", userID, err)
	}

	// 管理员签名的 Token 不能用于用户接口
	adminToken, _, err := svc.GenerateJWT(&models.Admin{ID: 1, Username: "ops"})
	if err != nil {
		t.Fatalf("generate admin jwt failed: %v", err)
	}
	if _, err := svc.ParseUserJWT(adminToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("admin token want invalid got %v", err)
	}

	expired, _ := svc.GenerateUserJWT("user-42", -time.Minute)
	if _, err := svc.ParseUserJWT(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token want invalid got %v", err)
	}
}

func TestCaptchaServiceDisabledPasses(t *testing.T) {
	svc := NewCaptchaService(config.CaptchaConfig{Provider: "none"})
	if svc.Enabled() {
		t.Fatalf("captcha should be disabled")
	}
	if err := svc.Verify(CaptchaVerifyPayload{}); err != nil {
		t.Fatalf("disabled captcha should pass: %v", err)
	}
}

func TestCaptchaServiceImageRequiresCode(t *testing.T) {
	svc := NewCaptchaService(config.CaptchaConfig{Provider: constants.CaptchaProviderImage})
	challenge, err := svc.GenerateImageChallenge()
	if err != nil {
		t.Fatalf("generate challenge failed: %v", err)
	}
	if challenge.CaptchaID == "" || challenge.ImageBase64 == "" {
		t.Fatalf("empty challenge: %+v", challenge)
	}
	if err := svc.Verify(CaptchaVerifyPayload{}); !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("want captcha required got %v", err)
	}
	if err := svc.Verify(CaptchaVerifyPayload{CaptchaID: challenge.CaptchaID, CaptchaCode: "zzzzzzzz"}); !errors.Is(err, ErrCaptchaInvalid) {
		t.Fatalf("want captcha invalid got %v", err)
	}
}

func TestPlanCatalog(t *testing.T) {
	catalog := NewPlanCatalog(testPricingConfig())
	if _, ok := catalog.Get(constants.PlanFree); ok {
		t.Fatalf("free plan is not purchasable")
	}
	amount, err := catalog.Price("PRO_MONTHLY", "cny")
	if err != nil || amount != 2999 {
		t.Fatalf("price want 2999 got %d err=%v", amount, err)
	}
	if _, err := catalog.Price(constants.PlanProMonthly, "EUR"); !errors.Is(err, ErrPriceNotConfigured) {
		t.Fatalf("want price not configured got %v", err)
	}
	plan, _ := catalog.Get(constants.PlanProYearly)
	if plan.PeriodDays != 365 {
		t.Fatalf("yearly period want 365 got %d", plan.PeriodDays)
	}
	if list := catalog.List(); len(list) != 2 || list[0].Code != constants.PlanProMonthly {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestGatewayFactory(t *testing.T) {
	app, payment := testPaymentConfig()
	factory := NewGatewayFactory(app, payment)

	if _, err := factory.Gateway("bitcoin"); !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Fatalf("want invalid method got %v", err)
	}
	if _, err := factory.Gateway(constants.PaymentMethodPhone); !errors.Is(err, ErrPaymentMethodUnavailable) {
		t.Fatalf("phone want unavailable got %v", err)
	}
	if _, err := factory.Gateway(constants.PaymentMethodPaypal); !errors.Is(err, ErrPaymentMethodUnavailable) {
		t.Fatalf("disabled paypal want unavailable got %v", err)
	}
	gateway, err := factory.Gateway(constants.PaymentMethodStripe)
	if err != nil {
		t.Fatalf("stripe gateway failed: %v", err)
	}
	if gateway.Currency() != constants.CurrencyUSD {
		t.Fatalf("stripe currency want USD got %s", gateway.Currency())
	}
	cfg, _, err := factory.AlipayConfig()
	if err != nil {
		t.Fatalf("alipay config failed: %v", err)
	}
	if cfg.NotifyURL != "https://api.quizmate.test"+AlipayNotifyPath {
		t.Fatalf("unexpected notify url %s", cfg.NotifyURL)
	}
	methods := factory.EnabledMethods()
	if len(methods) != 2 {
		t.Fatalf("want alipay and stripe enabled, got %v", methods)
	}
}

func TestGenerateOrderIDFormat(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := generateOrderID(constants.OrderPrefixWechat, now)
	if err != nil {
		t.Fatalf("generate order id failed: %v", err)
	}
	if len(id) != len("WXP")+14+10 {
		t.Fatalf("unexpected id length %s", id)
	}
	if id[:17] != "WXP20260301100000" {
		t.Fatalf("unexpected id prefix %s", id)
	}
	if !isTransitionAllowed(constants.OrderStatusPending, constants.OrderStatusPaid) {
		t.Fatalf("pending -> paid should be allowed")
	}
	if isTransitionAllowed(constants.OrderStatusPaid, constants.OrderStatusPending) {
		t.Fatalf("paid -> pending must be rejected")
	}
	if isTransitionAllowed(constants.OrderStatusCancelled, constants.OrderStatusPaid) {
		t.Fatalf("cancelled -> paid must be rejected")
	}
}

func TestGenerateOrderIDFailsWithoutEntropy(t *testing.T) {
	broken := iotest.ErrReader(errors.New("entropy exhausted"))
	id, err := generateOrderIDFrom(broken, constants.OrderPrefixStripe, time.Now())
	if err == nil || id != "" {
		t.Fatalf("want error without entropy, got id=%q err=%v", id, err)
	}
}
