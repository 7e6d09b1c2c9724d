package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/authz"
	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/google/uuid"
)

// 本地联调数据：运营账号、演示用户及其待支付订单
func main() {
	var (
		demoUserID string
		tokenTTL   time.Duration
	)
	flag.StringVar(&demoUserID, "user", "demo-user-0001", "演示用户ID")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "演示用户 Token 有效期")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	authzService, err := authz.NewService(models.DB)
	if err != nil {
		stdLog.Fatalf("Failed to init authz: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		stdLog.Fatalf("Failed to bootstrap roles: %v", err)
	}

	adminRepo := repository.NewAdminRepository(models.DB)
	authService := service.NewAuthService(cfg, adminRepo)
	staff := []struct {
		username string
		role     string
	}{
		{username: "support", role: "support"},
		{username: "finance", role: "finance"},
	}
	for _, item := range staff {
		existing, err := adminRepo.GetByUsername(item.username)
		if err != nil {
			stdLog.Fatalf("Failed to load admin %s: %v", item.username, err)
		}
		if existing == nil {
			password := uuid.NewString()[:12]
			hash, err := authService.HashPassword(password)
			if err != nil {
				stdLog.Fatalf("Failed to hash password: %v", err)
			}
			existing = &models.Admin{Username: item.username, PasswordHash: hash}
			if err := adminRepo.Create(existing); err != nil {
				stdLog.Fatalf("Failed to create admin %s: %v", item.username, err)
			}
			stdLog.Printf("Created admin %s with password %s", item.username, password)
		} else {
			stdLog.Printf("Admin already exists: %s", item.username)
		}
		if err := authzService.SetAdminRoles(existing.ID, []string{item.role}); err != nil {
			stdLog.Fatalf("Failed to assign role %s: %v", item.role, err)
		}
	}

	profileRepo := repository.NewProfileRepository(models.DB)
	now := time.Now()
	profile, err := profileRepo.GetByID(demoUserID)
	if err != nil {
		stdLog.Fatalf("Failed to load profile: %v", err)
	}
	if profile == nil {
		if err := profileRepo.Upsert(&models.Profile{
			ID:                 demoUserID,
			Plan:               constants.PlanFree,
			SubscriptionStatus: constants.SubscriptionStatusInactive,
			CreatedAt:          now,
			UpdatedAt:          now,
		}); err != nil {
			stdLog.Fatalf("Failed to seed profile: %v", err)
		}
	}

	catalog := service.NewPlanCatalog(cfg.Pricing)
	orderRepo := repository.NewOrderRepository(models.DB)
	for _, method := range []string{constants.PaymentMethodAlipay, constants.PaymentMethodStripe} {
		currency := constants.CurrencyCNY
		if method == constants.PaymentMethodStripe {
			currency = constants.CurrencyUSD
		}
		amount, err := catalog.Price(constants.PlanProMonthly, currency)
		if err != nil {
			stdLog.Printf("Skip %s demo order: %v", method, err)
			continue
		}
		expiresAt := now.Add(30 * time.Minute)
		order := &models.Order{
			ID:            fmt.Sprintf("%sDEMO%s", service.OrderPrefix(method), now.Format("20060102150405")),
			UserID:        demoUserID,
			PlanType:      constants.PlanProMonthly,
			PaymentMethod: method,
			Amount:        amount,
			Currency:      currency,
			Status:        constants.OrderStatusPending,
			ExpiresAt:     &expiresAt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := orderRepo.Create(order); err != nil {
			stdLog.Printf("Failed to create demo order %s: %v", order.ID, err)
			continue
		}
		stdLog.Printf("Created demo order %s (%d %s)", order.ID, amount, currency)
	}

	token, err := authService.GenerateUserJWT(demoUserID, tokenTTL)
	if err != nil {
		stdLog.Fatalf("Failed to sign demo token: %v", err)
	}
	stdLog.Printf("Demo user %s token: %s", demoUserID, token)
}
