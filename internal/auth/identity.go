package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-engine/internal/workflow"
)

// 上下文中的用户信息键
const (
	ContextUserID   = "user_id"
	ContextRoles    = "roles"
	contextIdentity = "identity"
)

// 未接入 Keycloak 时使用的身份请求头
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// SetIdentity 将已认证的身份写入 gin 上下文
func SetIdentity(c *gin.Context, id workflow.Identity) {
	c.Set(ContextUserID, id.UserID)
	c.Set(ContextRoles, id.Roles)
	c.Set(contextIdentity, id)
}

// IdentityFromContext 读取当前请求的身份
func IdentityFromContext(c *gin.Context) (workflow.Identity, bool) {
	if v, ok := c.Get(contextIdentity); ok {
		if id, ok := v.(workflow.Identity); ok && id.UserID != "" {
			return id, true
		}
	}
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return workflow.Identity{}, false
	}
	return workflow.Identity{UserID: userID, Roles: c.GetStringSlice(ContextRoles)}, true
}

// HeaderIdentityMiddleware 从请求头读取身份, 用于本地开发或网关已完成认证的部署
// X-User-Roles 为逗号分隔的角色列表
func HeaderIdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "missing " + HeaderUserID + " header",
			})
			c.Abort()
			return
		}

		var roles []string
		for _, role := range strings.Split(c.GetHeader(HeaderUserRoles), ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}

		SetIdentity(c, workflow.Identity{UserID: userID, Roles: roles})
		c.Next()
	}
}
