package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mautops/approval-engine/internal/model"
	"github.com/sirupsen/logrus"
)

// Message 推送给客户端的消息
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub 管理所有 WebSocket 连接, 按用户分组
type Hub struct {
	// 已注册的客户端, user_id -> clients
	clients map[string]map[*Client]struct{}

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	stop   chan struct{}
	logger *logrus.Logger

	// 互斥锁，保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行 Hub, 直到 Stop 被调用
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]struct{})
			}
			h.clients[client.UserID][client] = struct{}{}
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for _, set := range h.clients {
				for client := range set {
					h.remove(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止 Hub 并关闭所有连接
func (h *Hub) Stop() {
	close(h.stop)
}

// remove 移除客户端并关闭发送通道, 调用方持有写锁
func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
}

// SendToUser 向特定用户的所有连接发送消息, 返回送达的连接数
// 发送队列已满的连接会被断开
func (h *Hub) SendToUser(userID string, message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for client := range h.clients[userID] {
		select {
		case client.Send <- message:
			delivered++
		default:
			h.logger.WithFields(logrus.Fields{
				"client_id": client.ID,
				"user_id":   userID,
			}).Warn("WebSocket client too slow, disconnecting")
			h.remove(client)
		}
	}
	return delivered
}

// Publish 推送通知, 用户不在线时直接返回
func (h *Hub) Publish(_ context.Context, n *model.NotificationModel) error {
	data, err := json.Marshal(Message{Type: "notification", Data: n})
	if err != nil {
		return fmt.Errorf("failed to encode notification %s: %w", n.ID, err)
	}
	h.SendToUser(n.UserID, data)
	return nil
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.clients {
		for client := range set {
			if client.ID == clientID {
				return true
			}
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, set := range h.clients {
		count += len(set)
	}
	return count
}
