package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/approval-engine/internal/auth"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该检查 Origin
		return true
	},
}

// WebSocketHandler 通知推送的 WebSocket 处理器
// 配置了 Keycloak 时从 query 参数 token 认证, 否则使用上游中间件写入的身份
func WebSocketHandler(hub *Hub, validator *auth.KeycloakTokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 认证
		var userID string
		if validator != nil {
			token := c.Query("token")
			if token == "" {
				token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
			}
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "missing token"})
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "invalid token"})
				return
			}
			userID = claims.Sub
		} else {
			id, ok := auth.IdentityFromContext(c)
			if !ok {
				c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "unauthorized"})
				return
			}
			userID = id.UserID
		}

		// 2. 升级连接, 失败时 upgrader 已写入响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.WithError(err).Warn("Failed to upgrade WebSocket connection")
			return
		}

		// 3. 注册客户端
		client := NewClient(uuid.New().String(), userID, hub, conn)
		hub.Register <- client

		// 4. 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}
