package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-engine/internal/service"
	"github.com/mautops/approval-engine/internal/utils"
)

// maxWorkflowFileSize 流程定义文件大小上限
const maxWorkflowFileSize = 1 << 20

// WorkflowController 流程定义控制器
type WorkflowController struct {
	workflowService service.WorkflowService
}

// NewWorkflowController 创建流程定义控制器
func NewWorkflowController(workflowService service.WorkflowService) *WorkflowController {
	return &WorkflowController{
		workflowService: workflowService,
	}
}

// List 流程定义列表
// GET /api/v1/workflows
func (c *WorkflowController) List(ctx *gin.Context) {
	defs, err := c.workflowService.List()
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, defs)
}

// Get 流程定义详情
// GET /api/v1/workflows/:id
func (c *WorkflowController) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := utils.ValidateID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid workflow ID", err.Error())
		return
	}

	def, err := c.workflowService.Get(id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, def)
}

// Import 导入流程定义
// POST /api/v1/workflows/import
// 请求体为 JSON 或 YAML (Content-Type: application/yaml)
func (c *WorkflowController) Import(ctx *gin.Context) {
	caller, ok := identity(ctx)
	if !ok {
		return
	}

	if strings.Contains(ctx.ContentType(), "yaml") {
		data, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWorkflowFileSize))
		if err != nil {
			Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
		defs, err := c.workflowService.ImportYAML(ctx.Request.Context(), caller.UserID, data)
		if err != nil {
			HandleError(ctx, err)
			return
		}
		Created(ctx, defs)
		return
	}

	var file service.WorkflowFile
	if err := ctx.ShouldBindJSON(&file); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	defs, err := c.workflowService.Import(ctx.Request.Context(), caller.UserID, file.Workflows)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Created(ctx, defs)
}
