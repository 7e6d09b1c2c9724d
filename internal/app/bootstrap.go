package app

import (
	"errors"

	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/provider"
	"github.com/qingyi232/QuizMate1-sub002/internal/router"
	"github.com/qingyi232/QuizMate1-sub002/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if !isKnownMode(mode) {
		return nil, errors.New("unknown run mode: " + mode)
	}

	container := provider.NewContainer(cfg)
	return buildServices(cfg, mode, container)
}

func buildServices(cfg *config.Config, mode string, container *provider.Container) (*Runner, error) {
	var services []Service

	if runsHTTP(mode) {
		engine := router.SetupRouter(cfg, container)
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		services = append(services, NewHTTPService(addr, engine))
	}

	// 过期订单与对账重试的兜底扫描，队列关闭时独立运行
	if runsWorker(mode) {
		sweeper := worker.NewSweeper(cfg.Reconcile, container.OrderService, container.ReconcileService)
		if cfg.Queue.Enabled {
			consumer := worker.NewConsumer(container)
			workerService, err := worker.NewService(&cfg.Queue, consumer, sweeper)
			if err != nil {
				return nil, err
			}
			services = append(services, workerService)
		} else {
			services = append(services, sweeper)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("no services initialized (check mode and config)")
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	addr := opts.Config.Server.Host + ":" + opts.Config.Server.Port
	opts.Logger.Infow("app_start", "addr", addr, "mode", opts.Mode, "queue_enabled", opts.Config.Queue.Enabled)
	return RunWithOptions(runner, opts)
}
