package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-engine/internal/service"
	"github.com/mautops/approval-engine/internal/utils"
)

// NotificationController 通知控制器
type NotificationController struct {
	queryService service.QueryService
}

// NewNotificationController 创建通知控制器
func NewNotificationController(queryService service.QueryService) *NotificationController {
	return &NotificationController{
		queryService: queryService,
	}
}

// List 当前用户的通知
// GET /api/v1/notifications?unread=true&limit=50
func (c *NotificationController) List(ctx *gin.Context) {
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	limit, err := queryInt(ctx, "limit", 50)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	unreadOnly := ctx.Query("unread") == "true"

	list, err := c.queryService.ListNotifications(ctx.Request.Context(), caller.UserID, unreadOnly, limit)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, list)
}

// MarkRead 标记通知已读
// POST /api/v1/notifications/:id/read
func (c *NotificationController) MarkRead(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid notification ID", err.Error())
		return
	}
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	if err := c.queryService.MarkNotificationRead(ctx.Request.Context(), id, caller.UserID); err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, nil)
}
