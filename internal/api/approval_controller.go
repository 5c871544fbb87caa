package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-engine/internal/auth"
	"github.com/mautops/approval-engine/internal/service"
	"github.com/mautops/approval-engine/internal/utils"
	"github.com/mautops/approval-engine/internal/workflow"
)

// ApprovalController 审批请求控制器
type ApprovalController struct {
	approvalService service.ApprovalService
	queryService    service.QueryService
}

// NewApprovalController 创建审批请求控制器
func NewApprovalController(approvalService service.ApprovalService, queryService service.QueryService) *ApprovalController {
	return &ApprovalController{
		approvalService: approvalService,
		queryService:    queryService,
	}
}

// validateRequestID 验证审批请求 ID 并返回错误响应（如果无效）
func (c *ApprovalController) validateRequestID(ctx *gin.Context, id string) bool {
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request ID", err.Error())
		return false
	}
	return true
}

// identity 从上下文读取调用方身份
func identity(ctx *gin.Context) (workflow.Identity, bool) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		Error(ctx, http.StatusUnauthorized, "unauthorized", "")
		return workflow.Identity{}, false
	}
	return id, true
}

// Submit 提交审批
// POST /api/v1/approvals
func (c *ApprovalController) Submit(ctx *gin.Context) {
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	created, err := c.approvalService.Submit(ctx.Request.Context(), caller, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Created(ctx, created)
}

// Act 执行审批动作
// POST /api/v1/approvals/:id/actions
func (c *ApprovalController) Act(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateRequestID(ctx, id) {
		return
	}
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	var req service.ActRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	updated, err := c.approvalService.Act(ctx.Request.Context(), id, caller, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Success(ctx, updated)
}

// Get 审批请求详情
// GET /api/v1/approvals/:id
func (c *ApprovalController) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateRequestID(ctx, id) {
		return
	}
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	view, err := c.approvalService.Get(ctx.Request.Context(), id, caller)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Success(ctx, view)
}

// GetActive 单据进行中的审批请求
// GET /api/v1/approvals/active?entity_type=&entity_id=
func (c *ApprovalController) GetActive(ctx *gin.Context) {
	entityType := ctx.Query("entity_type")
	entityID := ctx.Query("entity_id")
	if entityType == "" || entityID == "" {
		Error(ctx, http.StatusBadRequest, "invalid request", "entity_type and entity_id are required")
		return
	}

	req, err := c.approvalService.GetActive(ctx.Request.Context(), entityType, entityID)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Success(ctx, req)
}

// History 审批动作记录
// GET /api/v1/approvals/:id/actions
func (c *ApprovalController) History(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateRequestID(ctx, id) {
		return
	}

	actions, err := c.approvalService.History(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Success(ctx, actions)
}

// CanAct 调用方能否处理当前步骤
// GET /api/v1/approvals/:id/can-act
func (c *ApprovalController) CanAct(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateRequestID(ctx, id) {
		return
	}
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	canAct, err := c.approvalService.CanAct(ctx.Request.Context(), id, caller)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Success(ctx, gin.H{"can_act": canAct})
}

// List 审批请求列表
// GET /api/v1/approvals
func (c *ApprovalController) List(ctx *gin.Context) {
	filter := &service.ListRequestsFilter{
		SortBy: ctx.Query("sort_by"),
		Order:  ctx.Query("order"),
	}
	if v := ctx.Query("status"); v != "" {
		status := workflow.Status(v)
		filter.Status = &status
	}
	if v := ctx.Query("entity_type"); v != "" {
		filter.EntityType = &v
	}
	if v := ctx.Query("entity_id"); v != "" {
		filter.EntityID = &v
	}
	if v := ctx.Query("submitted_by"); v != "" {
		filter.SubmittedBy = &v
	}

	// 解析分页参数
	var err error
	if filter.Page, err = queryInt(ctx, "page", 1); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid page", err.Error())
		return
	}
	if filter.PageSize, err = queryInt(ctx, "page_size", 20); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid page_size", err.Error())
		return
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	reqs, total, err := c.queryService.ListRequests(ctx.Request.Context(), filter)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Paginated(ctx, reqs, NewPaginationInfo(filter.Page, filter.PageSize, total))
}

// Inbox 调用方待处理的审批请求
// GET /api/v1/approvals/inbox
func (c *ApprovalController) Inbox(ctx *gin.Context) {
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	reqs, err := c.queryService.Inbox(ctx.Request.Context(), caller)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	Success(ctx, reqs)
}

// ViewAllowed 提交人和当前步骤审批人无需 OpenFGA 即可查看
func (c *ApprovalController) ViewAllowed(ctx *gin.Context) bool {
	caller, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return false
	}
	view, err := c.approvalService.Get(ctx.Request.Context(), ctx.Param("id"), caller)
	if err != nil {
		// 不存在的请求交给 handler 返回 404
		return workflow.KindOf(err) == workflow.KindNotFound
	}
	return view.CanAct || view.Request.SubmittedBy == caller.UserID
}

func queryInt(ctx *gin.Context, key string, def int) (int, error) {
	v := ctx.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return def, nil
	}
	return n, nil
}
