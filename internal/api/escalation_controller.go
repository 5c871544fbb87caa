package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-engine/internal/service"
)

// EscalationController 超时升级控制器
type EscalationController struct {
	escalationService service.EscalationService
}

// NewEscalationController 创建超时升级控制器
func NewEscalationController(escalationService service.EscalationService) *EscalationController {
	return &EscalationController{
		escalationService: escalationService,
	}
}

// Sweep 手动触发一次超时升级扫描
// POST /api/v1/escalations/sweep
func (c *EscalationController) Sweep(ctx *gin.Context) {
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	result, err := c.escalationService.Sweep(ctx.Request.Context(), caller.UserID)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}
