package container

import (
	"fmt"
	"time"

	"github.com/mautops/approval-engine/internal/api"
	"github.com/mautops/approval-engine/internal/auth"
	"github.com/mautops/approval-engine/internal/config"
	"github.com/mautops/approval-engine/internal/database"
	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/metrics"
	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/service"
	"github.com/mautops/approval-engine/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options 容器可选项
type Options struct {
	// ConfigPath 不为空时监听配置文件变化, 热加载单据状态映射和日志级别
	ConfigPath string
	// DB 不为空时直接使用, 不再按配置连接数据库
	DB *gorm.DB
	// SkipMigrate 跳过自动迁移
	SkipMigrate bool
}

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、服务、客户端等
type Container struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *gorm.DB

	store      integration.WorkflowStore
	syncer     *integration.MappingSynchronizer
	dispatcher integration.NotificationDispatcher
	tracker    integration.RequestTracker
	scheduler  *integration.EscalationScheduler
	hub        *websocket.Hub
	nats       *integration.NATSPublisher

	fgaClient         *auth.OpenFGAClient
	permission        *auth.CachedOpenFGAClient
	keycloakValidator *auth.KeycloakTokenValidator

	approvalService   service.ApprovalService
	queryService      service.QueryService
	workflowService   service.WorkflowService
	escalationService service.EscalationService
	statisticsService service.StatisticsService

	watcher   *config.ConfigWatcher
	collector *metrics.Collector
	cron      *service.EscalationCron
	started   bool
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Container{cfg: cfg, logger: logger}

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	db := opts.DB
	if db == nil {
		var err error
		db, err = database.ConnectWithRetry(cfg.Database, 3, time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	c.db = db

	if !opts.SkipMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// 2. 通知推送通道: WebSocket 总是启用, NATS 按配置启用
	c.hub = websocket.NewHub(logger)
	publishers := []integration.NotificationPublisher{c.hub}
	if cfg.NATS.URL != "" {
		nats, err := integration.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to connect NATS: %w", err)
		}
		c.nats = nats
		publishers = append(publishers, nats)
	}

	// 3. 审批引擎核心组件
	c.store = integration.NewWorkflowStore(db)
	c.syncer = integration.NewDocumentSynchronizer(db, StatusMappings(cfg.Sync.Mappings))
	c.dispatcher = integration.NewNotificationDispatcher(db, integration.NewRoleDirectory(db), logger, publishers...)
	c.tracker = integration.NewRequestTracker(db, c.store, c.syncer, c.dispatcher, integration.WithLogger(logger))
	c.scheduler = integration.NewEscalationScheduler(db, c.store, c.tracker, logger)

	// 4. 初始化 OpenFGA 客户端（带重试机制）, 未配置 store 时不启用查看权限检查
	if cfg.OpenFGA.StoreID != "" {
		fgaClient, err := auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.fgaClient = fgaClient
		c.permission = auth.NewCachedOpenFGAClient(fgaClient, auth.NewPermissionCache(time.Minute))
	} else {
		logger.Warn("OpenFGA is not configured, view permission checks are disabled")
	}

	// 5. 初始化 Keycloak Token 验证器, 未配置时使用请求头身份
	if cfg.Keycloak.Issuer != "" {
		c.keycloakValidator = auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer).WithJWKSURL(cfg.Keycloak.JWKSURL)
	} else {
		if config.IsProduction(cfg) {
			c.Close()
			return nil, fmt.Errorf("keycloak issuer is required in production")
		}
		logger.Warn("Keycloak is not configured, using X-User-ID header identity")
	}

	// 6. 服务层
	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	var access service.RequestAccessGranter
	if c.permission != nil {
		access = c.permission
	}
	c.approvalService = service.NewApprovalService(c.tracker, access, logger)
	c.queryService = service.NewQueryService(db, c.store)
	c.workflowService = service.NewWorkflowService(c.store, auditLogSvc, logger)
	c.escalationService = service.NewEscalationService(c.scheduler, auditLogSvc, logger)
	c.statisticsService = service.NewStatisticsService(db)

	// 7. 后台任务, 由 Start 启动
	c.collector = metrics.NewCollector(db, 30*time.Second, logger)
	if cfg.Escalation.Enabled {
		cron, err := service.NewEscalationCron(c.scheduler, cfg.Escalation.Schedule, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.cron = cron
	}
	if opts.ConfigPath != "" {
		c.watcher = config.NewConfigWatcher(cfg, opts.ConfigPath, logger)
		c.watcher.OnConfigChange(c.applyConfig)
	}

	return c, nil
}

// applyConfig 热加载运行期配置
func (c *Container) applyConfig(cfg *config.Config) {
	c.syncer.SetMappings(StatusMappings(cfg.Sync.Mappings))
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		c.logger.SetLevel(level)
	}
	c.logger.WithField("mappings", len(cfg.Sync.Mappings)).Info("Runtime config reloaded")
}

// StatusMappings 把配置中的映射转换为同步器使用的映射
func StatusMappings(mappings map[string]config.StatusMapping) map[string]integration.StatusMapping {
	result := make(map[string]integration.StatusMapping, len(mappings))
	for entityType, m := range mappings {
		result[entityType] = integration.StatusMapping{
			Table:            m.Table,
			IDColumn:         m.IDColumn,
			StatusColumn:     m.StatusColumn,
			ApprovedStatus:   m.ApprovedStatus,
			RejectedStatus:   m.RejectedStatus,
			ReturnedStatus:   m.ReturnedStatus,
			ApprovedAtColumn: m.ApprovedAtColumn,
		}
	}
	return result
}

// Start 启动后台任务: WebSocket hub、指标收集、定时升级扫描和配置监听
func (c *Container) Start() error {
	c.started = true
	go c.hub.Run()
	c.collector.Start()
	if c.cron != nil {
		c.cron.Start()
	}
	if c.watcher != nil {
		if err := c.watcher.Start(); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
	}
	return nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Hub 获取 WebSocket hub
func (c *Container) Hub() *websocket.Hub {
	return c.hub
}

// Scheduler 获取超时升级扫描器
func (c *Container) Scheduler() *integration.EscalationScheduler {
	return c.scheduler
}

// Tracker 获取审批请求跟踪器
func (c *Container) Tracker() integration.RequestTracker {
	return c.tracker
}

// OpenFGAClient 获取 OpenFGA 客户端, 未配置时为 nil
func (c *Container) OpenFGAClient() *auth.OpenFGAClient {
	return c.fgaClient
}

// KeycloakValidator 获取 Keycloak Token 验证器, 未配置时为 nil
func (c *Container) KeycloakValidator() *auth.KeycloakTokenValidator {
	return c.keycloakValidator
}

// ApprovalService 获取审批请求服务
func (c *Container) ApprovalService() service.ApprovalService {
	return c.approvalService
}

// QueryService 获取查询服务
func (c *Container) QueryService() service.QueryService {
	return c.queryService
}

// WorkflowService 获取流程定义服务
func (c *Container) WorkflowService() service.WorkflowService {
	return c.workflowService
}

// EscalationService 获取超时升级服务
func (c *Container) EscalationService() service.EscalationService {
	return c.escalationService
}

// StatisticsService 获取统计服务
func (c *Container) StatisticsService() service.StatisticsService {
	return c.statisticsService
}

// RouterDeps 组装 HTTP 路由依赖
// 未配置 OpenFGA 时保持接口为 nil, 路由据此跳过权限检查
func (c *Container) RouterDeps() *api.RouterDeps {
	deps := &api.RouterDeps{
		Config:            c.cfg,
		Logger:            c.logger,
		DB:                c.db,
		Hub:               c.hub,
		Validator:         c.keycloakValidator,
		ApprovalService:   c.approvalService,
		QueryService:      c.queryService,
		WorkflowService:   c.workflowService,
		EscalationService: c.escalationService,
		StatisticsService: c.statisticsService,
	}
	if c.permission != nil {
		deps.Permission = c.permission
	}
	if c.fgaClient != nil {
		deps.FGAHealth = c.fgaClient
	}
	return deps
}

// Close 关闭容器,清理资源
// 先停止产生通知的后台任务, 再关闭推送通道和数据库
func (c *Container) Close() error {
	if c.cron != nil {
		c.cron.Stop()
	}
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.started {
		c.collector.Stop()
	}
	if c.dispatcher != nil {
		c.dispatcher.Close()
	}
	if c.nats != nil {
		_ = c.nats.Close()
	}
	if c.hub != nil {
		c.hub.Stop()
	}

	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}
