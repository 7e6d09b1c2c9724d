package provider

import (
	"github.com/qingyi232/QuizMate1-sub002/internal/authz"
	"github.com/qingyi232/QuizMate1-sub002/internal/cache"
	"github.com/qingyi232/QuizMate1-sub002/internal/config"
	"github.com/qingyi232/QuizMate1-sub002/internal/logger"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"
	"github.com/qingyi232/QuizMate1-sub002/internal/queue"
	"github.com/qingyi232/QuizMate1-sub002/internal/repository"
	"github.com/qingyi232/QuizMate1-sub002/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	AdminRepo          repository.AdminRepository
	OrderRepo          repository.OrderRepository
	ProfileRepo        repository.ProfileRepository
	TransactionRepo    repository.TransactionRepository
	ReconcileIssueRepo repository.ReconcileIssueRepository

	// Services
	AuthzService     *authz.Service
	AuthService      *service.AuthService
	CaptchaService   *service.CaptchaService
	PlanCatalog      *service.PlanCatalog
	GatewayFactory   *service.GatewayFactory
	OrderService     *service.OrderService
	ReconcileService *service.ReconcileService
	CallbackVerifier *service.CallbackVerifier
	CaptureService   *service.PaymentCaptureService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.ProfileRepo = repository.NewProfileRepository(db)
	c.TransactionRepo = repository.NewTransactionRepository(db)
	c.ReconcileIssueRepo = repository.NewReconcileIssueRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.PlanCatalog = service.NewPlanCatalog(c.Config.Pricing)
	c.GatewayFactory = service.NewGatewayFactory(c.Config.App, c.Config.Payment)
	if methods := c.GatewayFactory.EnabledMethods(); len(methods) == 0 {
		logger.Warnw("provider_no_payment_method_enabled")
	}

	c.OrderService = service.NewOrderService(c.OrderRepo, c.ProfileRepo, c.PlanCatalog, c.GatewayFactory, c.QueueClient, c.Config.Order)
	c.ReconcileService = service.NewReconcileService(
		c.OrderRepo,
		c.ProfileRepo,
		c.TransactionRepo,
		c.ReconcileIssueRepo,
		c.PlanCatalog,
		c.QueueClient,
		c.Config.Reconcile,
	)
	c.CallbackVerifier = service.NewCallbackVerifier(c.GatewayFactory)
	c.CaptureService = service.NewPaymentCaptureService(c.OrderService, c.GatewayFactory, c.ReconcileService)
}
