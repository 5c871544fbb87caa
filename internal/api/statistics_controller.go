package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-engine/internal/service"
)

// StatisticsController 统计控制器
type StatisticsController struct {
	statisticsService service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(statisticsService service.StatisticsService) *StatisticsController {
	return &StatisticsController{
		statisticsService: statisticsService,
	}
}

// Overview 审批统计概览
// GET /api/v1/statistics
func (c *StatisticsController) Overview(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()

	byStatus, err := c.statisticsService.GetRequestStatisticsByStatus(reqCtx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	byEntityType, err := c.statisticsService.GetRequestStatisticsByEntityType(reqCtx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	approvals, err := c.statisticsService.GetApprovalStatistics(reqCtx)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Success(ctx, gin.H{
		"by_status":      byStatus,
		"by_entity_type": byEntityType,
		"approvals":      approvals,
	})
}
