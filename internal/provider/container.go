package provider

import (
	"github.com/paysats/paysats-api/internal/authz"
	"github.com/paysats/paysats-api/internal/bch"
	"github.com/paysats/paysats-api/internal/cache"
	"github.com/paysats/paysats-api/internal/config"
	"github.com/paysats/paysats-api/internal/logger"
	"github.com/paysats/paysats-api/internal/models"
	"github.com/paysats/paysats-api/internal/queue"
	"github.com/paysats/paysats-api/internal/repository"
	"github.com/paysats/paysats-api/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Wallet      *bch.Wallet

	// Repositories
	AdminRepo         repository.AdminRepository
	TransactionRepo   repository.TransactionRepository
	PaymentRepo       repository.PaymentRepository
	FulfillmentRepo   repository.FulfillmentRepository
	SettingRepo       repository.SettingRepository
	AuthzAuditLogRepo repository.AuthzAuditLogRepository
	DashboardRepo     repository.DashboardRepository

	// Services
	AuthzService       *authz.Service
	AuthService        *service.AuthService
	CaptchaService     *service.CaptchaService
	SettingService     *service.SettingService
	RateService        *service.RateService
	PaymentService     *service.PaymentService
	TransactionService *service.TransactionService
	FulfillmentService *service.FulfillmentService
	AuthzAuditService  *service.AuthzAuditService
	DashboardService   *service.DashboardService
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

	// 1. 初始化只读钱包
	c.initWallet()

	// 2. 初始化 Repositories
	c.initRepositories()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initWallet() {
	if c.Config.BCH.Xpub == "" {
		logger.Warnw("provider_wallet_disabled", "reason", "bch.xpub not configured")
		return
	}
	wallet, err := bch.NewWallet(c.Config.BCH.Xpub, c.Config.BCH.Network)
	if err != nil {
		logger.Errorw("provider_init_wallet_failed", "error", err)
		return
	}
	c.Wallet = wallet
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.TransactionRepo = repository.NewTransactionRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.FulfillmentRepo = repository.NewFulfillmentRepository(db)
	c.SettingRepo = repository.NewSettingRepository(db)
	c.AuthzAuditLogRepo = repository.NewAuthzAuditLogRepository(db)
	c.DashboardRepo = repository.NewDashboardRepository(db)
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

	c.SettingService = service.NewSettingService(c.SettingRepo)
	c.CaptchaService = service.NewCaptchaService(c.SettingService, c.Config.Captcha)
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.RateService = service.NewRateService(c.Config)
	c.PaymentService = service.NewPaymentService(c.Config, c.TransactionRepo, c.PaymentRepo, c.SettingRepo, c.Wallet, c.QueueClient)
	c.TransactionService = service.NewTransactionService(c.Config, c.TransactionRepo, c.PaymentService, c.RateService)
	c.FulfillmentService = service.NewFulfillmentService(c.Config, c.TransactionRepo, c.FulfillmentRepo, c.QueueClient)
	c.AuthzAuditService = service.NewAuthzAuditService(c.AuthzAuditLogRepo)
	c.DashboardService = service.NewDashboardService(c.DashboardRepo)
}
