package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
)

func TestDisabledClientSkipsEnqueue(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("client should be disabled")
	}
	if err := client.EnqueueOrderTimeoutCancel(OrderTimeoutCancelPayload{OrderID: "ALI1"}, time.Minute); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
	if err := client.EnqueueReconcileRetry(ReconcileRetryPayload{IssueID: 1}, time.Second, 5); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
	if err := client.EnqueueOrderPaid(OrderPaidPayload{OrderID: "ALI1"}); err != nil {
		t.Fatalf("disabled enqueue should be noop: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatalf("nil client should be disabled")
	}
}

func TestTaskPayloadEncoding(t *testing.T) {
	task, err := NewReconcileRetryTask(ReconcileRetryPayload{IssueID: 42})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskReconcileRetry {
		t.Fatalf("unexpected task type %s", task.Type())
	}
	var payload ReconcileRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	if payload.IssueID != 42 {
		t.Fatalf("issue id want 42 got %d", payload.IssueID)
	}

	task, err = NewOrderTimeoutCancelTask(OrderTimeoutCancelPayload{OrderID: "WXP20260101"})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskOrderTimeoutCancel {
		t.Fatalf("unexpected task type %s", task.Type())
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Host: "redis.local", Port: 6380, DB: 2})
	if opt.Addr != "redis.local:6380" || opt.DB != 2 {
		t.Fatalf("unexpected redis opt %+v", opt)
	}
	if cfg.Concurrency != 10 {
		t.Fatalf("concurrency want 10 got %d", cfg.Concurrency)
	}
	if cfg.Queues[CriticalQueue] == 0 || cfg.Queues[DefaultQueue] == 0 {
		t.Fatalf("default queues missing: %+v", cfg.Queues)
	}
}
