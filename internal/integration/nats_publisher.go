package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/approval-engine/internal/model"
	"github.com/nats-io/nats.go"
)

// NATSPublisher 把通知发布到 NATS, subject 为 <prefix>.<type>
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher 连接 NATS 并创建发布器
func NewNATSPublisher(url string, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("approval-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect nats %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

// Subject 返回通知类型对应的 subject
func (p *NATSPublisher) Subject(notificationType string) string {
	if p.prefix == "" {
		return notificationType
	}
	return p.prefix + "." + notificationType
}

// Publish 发布通知
func (p *NATSPublisher) Publish(ctx context.Context, n *model.NotificationModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.conn.Publish(p.Subject(n.Type), data); err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", n.ID, err)
	}
	return nil
}

// Close 刷新并关闭连接
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
