package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-engine/internal/auth"
	"github.com/mautops/approval-engine/internal/config"
	"github.com/mautops/approval-engine/internal/service"
	"github.com/mautops/approval-engine/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config *config.Config
	Logger *logrus.Logger
	DB     *gorm.DB
	Hub    *websocket.Hub

	// Validator 为空时使用 X-User-ID/X-User-Roles 请求头作为身份, 仅用于开发环境
	Validator *auth.KeycloakTokenValidator
	// Permission 为空时跳过 OpenFGA 检查
	Permission auth.PermissionChecker
	FGAHealth  HealthChecker

	ApprovalService   service.ApprovalService
	QueryService      service.QueryService
	WorkflowService   service.WorkflowService
	EscalationService service.EscalationService
	StatisticsService service.StatisticsService
}

// SetupRoutes 配置路由
func SetupRoutes(deps *RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if config.IsProduction(cfg) {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if TracingEnabled() {
		router.Use(TracingMiddleware(cfg.Tracing.ServiceName))
	}
	router.Use(RequestLogMiddleware(deps.Logger))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	healthController := NewHealthController(deps.DB, deps.FGAHealth)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", MetricsHandler)

	authMiddleware := auth.HeaderIdentityMiddleware()
	if deps.Validator != nil {
		authMiddleware = auth.KeycloakAuthMiddleware(deps.Validator)
	}

	// WebSocket 通知推送, 配置了 Keycloak 时由 handler 自己校验 token
	if deps.Hub != nil {
		if deps.Validator != nil {
			router.GET("/ws/notifications", websocket.WebSocketHandler(deps.Hub, deps.Validator))
		} else {
			router.GET("/ws/notifications", authMiddleware, websocket.WebSocketHandler(deps.Hub, nil))
		}
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware)

	operator := auth.OperatorMiddleware(deps.Permission)

	// 审批请求路由
	if deps.ApprovalService != nil && deps.QueryService != nil {
		approvalController := NewApprovalController(deps.ApprovalService, deps.QueryService)
		actLimiter := NewUserRateLimiter(cfg.RateLimit.ActRPS, cfg.RateLimit.ActBurst)
		viewer := auth.PermissionMiddleware(deps.Permission, auth.ObjectApprovalRequest, auth.RelationViewer, approvalController.ViewAllowed)

		approvals := v1.Group("/approvals")
		{
			approvals.POST("", actLimiter.Middleware(), approvalController.Submit)
			approvals.GET("", operator, approvalController.List)
			approvals.GET("/active", approvalController.GetActive)
			approvals.GET("/inbox", approvalController.Inbox)
			approvals.GET("/:id", viewer, approvalController.Get)
			approvals.GET("/:id/actions", viewer, approvalController.History)
			approvals.POST("/:id/actions", actLimiter.Middleware(), approvalController.Act)
			approvals.GET("/:id/can-act", approvalController.CanAct)
		}
	}

	// 通知路由
	if deps.QueryService != nil {
		notificationController := NewNotificationController(deps.QueryService)
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", notificationController.List)
			notifications.POST("/:id/read", notificationController.MarkRead)
		}
	}

	// 流程定义路由
	if deps.WorkflowService != nil {
		workflowController := NewWorkflowController(deps.WorkflowService)
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", workflowController.List)
			workflows.GET("/:id", workflowController.Get)
			workflows.POST("/import", operator, workflowController.Import)
		}
	}

	// 运维路由
	if deps.EscalationService != nil {
		escalationController := NewEscalationController(deps.EscalationService)
		v1.POST("/escalations/sweep", operator, escalationController.Sweep)
	}
	if deps.StatisticsService != nil {
		statisticsController := NewStatisticsController(deps.StatisticsService)
		v1.GET("/statistics", operator, statisticsController.Overview)
	}

	// 未匹配的路由返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
	})

	return router
}
