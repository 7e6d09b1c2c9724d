package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/provider"
	"github.com/qingyi232/QuizMate1-sub002/internal/queue"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderTimeoutCancel, c.handleOrderTimeoutCancel)
	mux.HandleFunc(queue.TaskReconcileRetry, c.handleReconcileRetry)
	mux.HandleFunc(queue.TaskOrderPaid, c.handleOrderPaid)
}

func (c *Consumer) handleOrderTimeoutCancel(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_timeout_cancel_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderTimeoutCancelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_timeout_cancel_unmarshal_failed", "error", err)
		return err
	}
	orderID := strings.TrimSpace(payload.OrderID)
	if orderID == "" {
		logger.Debugw("worker_order_timeout_cancel_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.OrderService == nil {
		logger.Warnw("worker_order_timeout_cancel_skip_order_service_nil", "order_id", orderID)
		return nil
	}
	cancelled, err := c.OrderService.CancelExpiredOrder(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_order_timeout_cancel_skip_order_not_found", "order_id", orderID)
			return nil
		case errors.Is(err, service.ErrOrderFetchFailed):
			logger.Warnw("worker_order_timeout_cancel_fetch_failed", "order_id", orderID, "error", err)
			return err
		case errors.Is(err, service.ErrOrderUpdateFailed):
			logger.Warnw("worker_order_timeout_cancel_update_failed", "order_id", orderID, "error", err)
			return err
		default:
			logger.Warnw("worker_order_timeout_cancel_failed", "order_id", orderID, "error", err)
			return err
		}
	}
	if !cancelled {
		logger.Debugw("worker_order_timeout_cancel_skip_not_pending", "order_id", orderID)
	}
	return nil
}

func (c *Consumer) handleReconcileRetry(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_reconcile_retry_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReconcileRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_reconcile_retry_unmarshal_failed", "error", err)
		return err
	}
	if payload.IssueID == 0 {
		logger.Debugw("worker_reconcile_retry_skip_invalid_payload", "issue_id", payload.IssueID)
		return nil
	}
	if c.ReconcileService == nil {
		logger.Warnw("worker_reconcile_retry_skip_service_nil", "issue_id", payload.IssueID)
		return nil
	}
	result, err := c.ReconcileService.RetryIssue(ctx, payload.IssueID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReconcileIssueNotFound):
			logger.Debugw("worker_reconcile_retry_skip_not_found", "issue_id", payload.IssueID)
			return nil
		case errors.Is(err, service.ErrReconcileIssueResolved):
			logger.Debugw("worker_reconcile_retry_skip_resolved", "issue_id", payload.IssueID)
			return nil
		case errors.Is(err, service.ErrAmountMismatch), errors.Is(err, service.ErrPassbackMismatch):
			// 数据不一致需要人工处理，重试不会改变结果
			logger.Warnw("worker_reconcile_retry_needs_manual", "issue_id", payload.IssueID, "error", err)
			return nil
		default:
			logger.Warnw("worker_reconcile_retry_failed", "issue_id", payload.IssueID, "error", err)
			return err
		}
	}
	logger.Infow("worker_reconcile_retry_done",
		"issue_id", payload.IssueID,
		"order_id", result.OrderID,
		"outcome", result.Outcome,
	)
	return nil
}

func (c *Consumer) handleOrderPaid(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_paid_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderPaidPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_paid_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		logger.Debugw("worker_order_paid_skip_invalid_payload")
		return nil
	}
	logger.WithOrder(payload.OrderID, payload.Provider).Infow("order_paid_notified",
		"user_id", payload.UserID,
		"plan", payload.Plan,
		"subscription_end", payload.SubscriptionEnd,
	)
	return nil
}
