package worker

import (
	"context"
	"errors"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 队列消费 + 定时兜底扫描
type Service struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper *Sweeper
}

// NewService 创建 worker，队列未启用时返回错误，调用方应改为单独运行 Sweeper
func NewService(cfg *config.QueueConfig, consumer *Consumer, sweeper *Sweeper) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	serverCfg.Logger = logger.S()
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		server:  asynq.NewServer(opt, serverCfg),
		mux:     mux,
		sweeper: sweeper,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string { return "worker" }

// Start 先挂上兜底扫描再开始消费，阻塞到 Shutdown
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("worker not initialized")
	}
	if s.sweeper != nil {
		if err := s.sweeper.schedule(ctx); err != nil {
			return err
		}
	}
	return s.server.Run(s.mux)
}

// Stop 停止扫描并等待进行中的任务结束
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	if s.sweeper != nil {
		_ = s.sweeper.Stop(ctx)
	}
	s.server.Shutdown()
	return nil
}
