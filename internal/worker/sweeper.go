package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"

	"github.com/robfig/cron/v3"
)

const (
	defaultSweepSpec      = "@every 5m"
	defaultSweepBatchSize = 100
	sweepRunTimeout       = 2 * time.Minute
)

// OrderSweeper 过期订单清理
type OrderSweeper interface {
	SweepExpiredOrders(ctx context.Context, limit int) (int, error)
}

// IssueSweeper 对账异常重试
type IssueSweeper interface {
	SweepRetryableIssues(ctx context.Context, limit int) (int, error)
}

// Sweeper 定时兜底任务：取消过期订单并重试对账异常，
// 队列丢任务或 Redis 不可用时由它保证最终一致
type Sweeper struct {
	name      string
	spec      string
	batchSize int
	orders    OrderSweeper
	issues    IssueSweeper

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper 创建定时兜底任务
func NewSweeper(cfg config.ReconcileConfig, orders OrderSweeper, issues IssueSweeper) *Sweeper {
	spec := strings.TrimSpace(cfg.SweepSpec)
	if spec == "" {
		spec = defaultSweepSpec
	}
	batchSize := cfg.SweepBatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &Sweeper{
		name:      "sweeper",
		spec:      spec,
		batchSize: batchSize,
		orders:    orders,
		issues:    issues,
	}
}

// Name 服务名称
func (s *Sweeper) Name() string {
	if s == nil || s.name == "" {
		return "sweeper"
	}
	return s.name
}

// Start 启动调度并阻塞到 ctx 结束
func (s *Sweeper) Start(ctx context.Context) error {
	if err := s.schedule(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *Sweeper) schedule(ctx context.Context) error {
	if s == nil {
		return errors.New("sweeper not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		logger.Errorw("worker_sweeper_spec_invalid", "spec", s.spec, "error", err)
		return err
	}
	scheduler.Start()
	s.cron = scheduler
	s.running = true
	logger.Infow("worker_sweeper_started", "spec", s.spec, "batch_size", s.batchSize)
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Sweeper) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	scheduler := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if scheduler == nil {
		return nil
	}
	done := scheduler.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce 执行一轮清理
func (s *Sweeper) RunOnce(parent context.Context) {
	if s == nil {
		return
	}
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, sweepRunTimeout)
	defer cancel()

	if s.orders != nil {
		cancelled, err := s.orders.SweepExpiredOrders(ctx, s.batchSize)
		if err != nil {
			logger.Warnw("worker_sweep_expired_orders_failed", "error", err)
		} else if cancelled > 0 {
			logger.Infow("worker_sweep_expired_orders", "cancelled", cancelled)
		}
	}
	if s.issues != nil {
		resolved, err := s.issues.SweepRetryableIssues(ctx, s.batchSize)
		if err != nil {
			logger.Warnw("worker_sweep_reconcile_issues_failed", "error", err)
		} else if resolved > 0 {
			logger.Infow("worker_sweep_reconcile_issues", "resolved", resolved)
		}
	}
}
