package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/provider"
	"github.com/qingyi232/QuizMate1-sub002/internal/queue"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func setupWorkerTestConsumer(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	catalog := service.NewPlanCatalog(config.PricingConfig{Plans: map[string]config.PlanPriceConfig{
		constants.PlanProMonthly: {Name: "Pro Monthly", PeriodDays: 30, Prices: map[string]int64{"CNY": 2999}},
	}})
	c := &provider.Container{
		Config:             &config.Config{},
		OrderRepo:          repository.NewOrderRepository(db),
		ProfileRepo:        repository.NewProfileRepository(db),
		TransactionRepo:    repository.NewTransactionRepository(db),
		ReconcileIssueRepo: repository.NewReconcileIssueRepository(db),
		PlanCatalog:        catalog,
	}
	c.OrderService = service.NewOrderService(c.OrderRepo, c.ProfileRepo, catalog, nil, nil, config.OrderConfig{})
	c.ReconcileService = service.NewReconcileService(c.OrderRepo, c.ProfileRepo, c.TransactionRepo, c.ReconcileIssueRepo, catalog, nil, config.ReconcileConfig{})
	return NewConsumer(c), db
}

func insertPendingOrder(t *testing.T, db *gorm.DB, id string, expiresAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            id,
		UserID:        "user-123",
		PlanType:      constants.PlanProMonthly,
		PaymentMethod: constants.PaymentMethodAlipay,
		Amount:        2999,
		Currency:      constants.CurrencyCNY,
		Status:        constants.OrderStatusPending,
		ExpiresAt:     &expiresAt,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func newTask(t *testing.T, taskType string, payload interface{}) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return asynq.NewTask(taskType, body)
}

func TestHandleOrderTimeoutCancel(t *testing.T) {
	consumer, db := setupWorkerTestConsumer(t)
	expired := insertPendingOrder(t, db, "ALI20260301100000EXPIRED01", time.Now().Add(-time.Minute))
	fresh := insertPendingOrder(t, db, "ALI20260301100000FRESH0001", time.Now().Add(time.Hour))

	ctx := context.Background()
	if err := consumer.handleOrderTimeoutCancel(ctx, newTask(t, queue.TaskOrderTimeoutCancel, queue.OrderTimeoutCancelPayload{OrderID: expired.ID})); err != nil {
		t.Fatalf("handle expired order failed: %v", err)
	}
	if err := consumer.handleOrderTimeoutCancel(ctx, newTask(t, queue.TaskOrderTimeoutCancel, queue.OrderTimeoutCancelPayload{OrderID: fresh.ID})); err != nil {
		t.Fatalf("handle fresh order failed: %v", err)
	}
	// 订单不存在时直接确认，避免无意义重试
	if err := consumer.handleOrderTimeoutCancel(ctx, newTask(t, queue.TaskOrderTimeoutCancel, queue.OrderTimeoutCancelPayload{OrderID: "ALI-missing"})); err != nil {
		t.Fatalf("missing order should be acked: %v", err)
	}
	if err := consumer.handleOrderTimeoutCancel(ctx, asynq.NewTask(queue.TaskOrderTimeoutCancel, []byte("{bad"))); err == nil {
		t.Fatalf("malformed payload should fail")
	}

	var gotExpired models.Order
	if err := db.First(&gotExpired, "id = ?", expired.ID).Error; err != nil {
		t.Fatalf("load expired order failed: %v", err)
	}
	if gotExpired.Status != constants.OrderStatusCancelled || gotExpired.CancelledAt == nil {
		t.Fatalf("expired order should be cancelled, got %s", gotExpired.Status)
	}
	var gotFresh models.Order
	if err := db.First(&gotFresh, "id = ?", fresh.ID).Error; err != nil {
		t.Fatalf("load fresh order failed: %v", err)
	}
	if gotFresh.Status != constants.OrderStatusPending {
		t.Fatalf("fresh order should stay pending, got %s", gotFresh.Status)
	}
}

func TestHandleReconcileRetryResolvesIssue(t *testing.T) {
	consumer, db := setupWorkerTestConsumer(t)
	order := insertPendingOrder(t, db, "ALI20260301100000RETRY0001", time.Now().Add(time.Hour))
	issue := &models.ReconcileIssue{
		OrderID:       order.ID,
		Provider:      order.PaymentMethod,
		TransactionID: "T-RETRY",
		Stage:         constants.ReconcileStageApply,
		LastError:     "database is locked",
		Attempts:      1,
		Status:        constants.ReconcileIssueStatusOpen,
		Payload: models.JSON{
			"provider":       order.PaymentMethod,
			"event_type":     "TRADE_SUCCESS",
			"order_id":       order.ID,
			"transaction_id": "T-RETRY",
			"status":         constants.OrderStatusPaid,
			"amount":         2999,
			"currency":       constants.CurrencyCNY,
		},
	}
	if err := db.Create(issue).Error; err != nil {
		t.Fatalf("create issue failed: %v", err)
	}

	task := newTask(t, queue.TaskReconcileRetry, queue.ReconcileRetryPayload{IssueID: issue.ID})
	if err := consumer.handleReconcileRetry(context.Background(), task); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	var stored models.ReconcileIssue
	db.First(&stored, issue.ID)
	if stored.Status != constants.ReconcileIssueStatusResolved {
		t.Fatalf("issue should be resolved, got %s", stored.Status)
	}
	var paid models.Order
	db.First(&paid, "id = ?", order.ID)
	if paid.Status != constants.OrderStatusPaid {
		t.Fatalf("order should be paid, got %s", paid.Status)
	}

	// 已解决的记录再次投递时直接确认
	if err := consumer.handleReconcileRetry(context.Background(), task); err != nil {
		t.Fatalf("resolved issue should be acked: %v", err)
	}
	if err := consumer.handleReconcileRetry(context.Background(), newTask(t, queue.TaskReconcileRetry, queue.ReconcileRetryPayload{IssueID: 9999})); err != nil {
		t.Fatalf("missing issue should be acked: %v", err)
	}
}

func TestHandleOrderPaidAcks(t *testing.T) {
	consumer, _ := setupWorkerTestConsumer(t)
	end := time.Now().Add(30 * 24 * time.Hour)
	task := newTask(t, queue.TaskOrderPaid, queue.OrderPaidPayload{
		OrderID:         "ALI20260301100000PAID00001",
		UserID:          "user-123",
		Plan:            constants.PlanProMonthly,
		Provider:        constants.PaymentMethodAlipay,
		SubscriptionEnd: &end,
	})
	if err := consumer.handleOrderPaid(context.Background(), task); err != nil {
		t.Fatalf("order paid notification failed: %v", err)
	}
	var nilConsumer *Consumer
	if err := nilConsumer.handleOrderPaid(context.Background(), task); err != nil {
		t.Fatalf("nil consumer should skip: %v", err)
	}
}

type stubSweep struct {
	calls  int
	limits []int
	err    error
}

func (s *stubSweep) SweepExpiredOrders(ctx context.Context, limit int) (int, error) {
	s.calls++
	s.limits = append(s.limits, limit)
	return 2, s.err
}

func (s *stubSweep) SweepRetryableIssues(ctx context.Context, limit int) (int, error) {
	s.calls++
	s.limits = append(s.limits, limit)
	return 1, s.err
}

func TestSweeperRunOnce(t *testing.T) {
	orders := &stubSweep{}
	issues := &stubSweep{err: errors.New("db down")}
	sweeper := NewSweeper(config.ReconcileConfig{SweepBatchSize: 7}, orders, issues)

	sweeper.RunOnce(context.Background())
	if orders.calls != 1 || issues.calls != 1 {
		t.Fatalf("each sweep should run once, got orders=%d issues=%d", orders.calls, issues.calls)
	}
	if orders.limits[0] != 7 || issues.limits[0] != 7 {
		t.Fatalf("batch size not applied: %v %v", orders.limits, issues.limits)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sweeper.RunOnce(ctx)
	if orders.calls != 1 {
		t.Fatalf("cancelled context should skip sweep")
	}
}

func TestSweeperRejectsInvalidSpec(t *testing.T) {
	sweeper := NewSweeper(config.ReconcileConfig{SweepSpec: "not a cron"}, &stubSweep{}, nil)
	if err := sweeper.Start(context.Background()); err == nil {
		t.Fatalf("invalid spec should fail")
	}

	ok := NewSweeper(config.ReconcileConfig{}, &stubSweep{}, nil)
	if ok.spec != defaultSweepSpec || ok.batchSize != defaultSweepBatchSize {
		t.Fatalf("unexpected defaults: %s %d", ok.spec, ok.batchSize)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ok.Start(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("start should return nil after cancel: %v", err)
	}
	if err := ok.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
