package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-engine/internal/workflow"
)

// StatusForError 审批引擎错误类型对应的 HTTP 状态码
func StatusForError(err error) int {
	switch workflow.KindOf(err) {
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindForbidden:
		return http.StatusForbidden
	case workflow.KindInvalidTransition:
		return http.StatusConflict
	case workflow.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HandleError 把服务层错误写成统一的错误响应
func HandleError(c *gin.Context, err error) {
	status := StatusForError(err)
	switch status {
	case http.StatusForbidden:
		detail := ForbiddenDetail{Reason: err.Error(), Approvers: []string{}}
		var werr *workflow.Error
		if errors.As(err, &werr) {
			detail.Approvers = workflow.DescribeApprovers(werr.Approvers)
		}
		Error(c, status, "forbidden", detail)
	case http.StatusNotFound:
		Error(c, status, "not found", err.Error())
	case http.StatusConflict:
		Error(c, status, "invalid transition", err.Error())
	case http.StatusUnprocessableEntity:
		Error(c, status, "validation failed", err.Error())
	default:
		_ = c.Error(err)
		Error(c, status, "internal server error", err.Error())
	}
}

// ErrorHandlerMiddleware 错误处理中间件
// 处理 handler 通过 c.Error 记录但尚未写出的错误
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			HandleError(c, c.Errors.Last().Err)
		}
	}
}
