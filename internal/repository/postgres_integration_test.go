//go:build integration
// +build integration

package repository

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.ReconcileIssue{},
		&models.Transaction{},
		&models.Profile{},
		&models.Order{},
		&models.Admin{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresOrderSearchUsesILike(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewOrderRepository(db)

	order := newTestOrder("ALI20260101000000000901", "pg-user", time.Now().Add(time.Hour))
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	rows, total, err := repo.ListAdmin(OrderListFilter{Page: 1, PageSize: 10, Keyword: "ali2026"})
	if err != nil {
		t.Fatalf("list admin failed: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("case-insensitive search want 1 got total=%d len=%d", total, len(rows))
	}
}

func TestPostgresDuplicateTransactionKeepsTxUsable(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	now := time.Now().UTC()

	order := newTestOrder("WXP20260101000000000902", "pg-user", now.Add(time.Hour))
	if err := NewOrderRepository(db).Create(order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		txnRepo := NewTransactionRepository(db).WithTx(tx)
		txn := &models.Transaction{
			UserID:        order.UserID,
			OrderID:       order.ID,
			PaymentMethod: constants.PaymentMethodWechat,
			Amount:        order.Amount,
			Currency:      order.Currency,
			Status:        constants.TransactionStatusSuccess,
			TransactionID: "4200000902",
		}
		if err := txnRepo.Append(txn); err != nil {
			return err
		}
		dup := *txn
		dup.ID = 0
		if err := txnRepo.Append(&dup); !errors.Is(err, ErrTransactionDuplicate) {
			t.Fatalf("want ErrTransactionDuplicate got %v", err)
		}
		ok, err := NewOrderRepository(db).WithTx(tx).TransitionStatus(order.ID, constants.OrderStatusPending, constants.OrderStatusPaid, map[string]interface{}{"paid_at": now})
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("transition after duplicate insert should still apply")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}
