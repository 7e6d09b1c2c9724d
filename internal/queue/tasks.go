package queue

import (
	"encoding/json"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderTimeoutCancel 超时取消任务
	TaskOrderTimeoutCancel = constants.TaskOrderTimeoutCancel
	// TaskOrderPaid 订单支付成功通知任务
	TaskOrderPaid = constants.TaskOrderPaid
	// TaskReconcileRetry 对账补偿重试任务
	TaskReconcileRetry = constants.TaskReconcileRetry
)

// OrderTimeoutCancelPayload 超时取消任务载荷
type OrderTimeoutCancelPayload struct {
	OrderID string `json:"order_id"`
}

// OrderPaidPayload 订单支付成功任务载荷
type OrderPaidPayload struct {
	OrderID         string     `json:"order_id"`
	UserID          string     `json:"user_id"`
	Plan            string     `json:"plan"`
	Provider        string     `json:"provider"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
}

// ReconcileRetryPayload 对账补偿重试任务载荷
type ReconcileRetryPayload struct {
	IssueID uint `json:"issue_id"`
}

// NewOrderTimeoutCancelTask 创建超时取消任务
func NewOrderTimeoutCancelTask(payload OrderTimeoutCancelPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderTimeoutCancel, payload)
}

// NewOrderPaidTask 创建支付成功通知任务
func NewOrderPaidTask(payload OrderPaidPayload) (*asynq.Task, error) {
	return newJSONTask(TaskOrderPaid, payload)
}

// NewReconcileRetryTask 创建对账补偿重试任务
func NewReconcileRetryTask(payload ReconcileRetryPayload) (*asynq.Task, error) {
	return newJSONTask(TaskReconcileRetry, payload)
}

func newJSONTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body), nil
}
