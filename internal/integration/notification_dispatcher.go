package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/approval-engine/internal/metrics"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 通知类型
const (
	NotificationApprovalRequired   = "approval_required"
	NotificationApproved           = "approved"
	NotificationRejected           = "rejected"
	NotificationReturned           = "returned"
	NotificationEscalationReminder = "escalation_reminder"
)

// NotificationTarget 通知对象: 显式用户和需要展开的角色
type NotificationTarget struct {
	UserIDs []string
	Roles   []string
}

// NotificationMessage 通知内容
type NotificationMessage struct {
	Type       string
	Title      string
	Message    string
	EntityType string
	EntityID   string
	RequestID  string
	Payload    map[string]interface{}
}

// NotificationPublisher 通知的外部推送通道
type NotificationPublisher interface {
	Publish(ctx context.Context, n *model.NotificationModel) error
}

// NotificationDispatcher 通知分发器
type NotificationDispatcher interface {
	// Dispatch 为每个接收人写入一条通知, 返回已写入的通知
	Dispatch(ctx context.Context, target NotificationTarget, msg NotificationMessage) ([]*model.NotificationModel, error)
	Close()
}

// dbNotificationDispatcher 写入 notifications 表并异步推送到外部通道
type dbNotificationDispatcher struct {
	db         *gorm.DB
	roles      RoleDirectory
	publishers []NotificationPublisher
	logger     *logrus.Logger
	queue      chan *model.NotificationModel
	stop       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewNotificationDispatcher 创建通知分发器
// 有推送通道时启动后台 worker
func NewNotificationDispatcher(db *gorm.DB, roles RoleDirectory, logger *logrus.Logger, publishers ...NotificationPublisher) NotificationDispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	d := &dbNotificationDispatcher{
		db:         db,
		roles:      roles,
		publishers: publishers,
		logger:     logger,
		queue:      make(chan *model.NotificationModel, 1000),
		stop:       make(chan struct{}),
	}

	if len(publishers) > 0 {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Dispatch 展开角色并写入通知
func (d *dbNotificationDispatcher) Dispatch(ctx context.Context, target NotificationTarget, msg NotificationMessage) ([]*model.NotificationModel, error) {
	// 1. 展开接收人, 角色在分发时实时查询
	recipients, expandErr := d.expand(ctx, target)

	// 2. 生成通知
	var payload datatypes.JSON
	if len(msg.Payload) > 0 {
		data, err := json.Marshal(msg.Payload)
		if err == nil {
			payload = data
		}
	}

	now := time.Now()
	notifications := make([]*model.NotificationModel, 0, len(recipients))
	for _, userID := range recipients {
		notifications = append(notifications, &model.NotificationModel{
			ID:         uuid.New().String(),
			UserID:     userID,
			Type:       msg.Type,
			Title:      msg.Title,
			Message:    msg.Message,
			EntityType: msg.EntityType,
			EntityID:   msg.EntityID,
			RequestID:  msg.RequestID,
			Payload:    payload,
			CreatedAt:  now,
		})
	}

	// 3. 保存
	if err := repository.NewNotificationRepository(d.db.WithContext(ctx)).SaveBatch(notifications); err != nil {
		metrics.RecordNotificationFailure()
		return nil, workflow.NotifyFailure(err, "failed to save %s notifications", msg.Type)
	}

	// 4. 推送到外部通道
	if len(d.publishers) > 0 {
		for _, n := range notifications {
			select {
			case d.queue <- n:
			default:
				// 队列满时丢弃推送, 通知已落库
				d.logger.WithFields(logrus.Fields{
					"notification_id": n.ID,
					"user_id":         n.UserID,
				}).Warn("Notification push queue full, dropping push")
			}
		}
	}

	if expandErr != nil {
		return notifications, expandErr
	}
	return notifications, nil
}

// expand 合并显式用户和角色成员, 去重并保持顺序
func (d *dbNotificationDispatcher) expand(ctx context.Context, target NotificationTarget) ([]string, error) {
	seen := make(map[string]struct{})
	var recipients []string
	add := func(userID string) {
		if userID == "" {
			return
		}
		if _, ok := seen[userID]; ok {
			return
		}
		seen[userID] = struct{}{}
		recipients = append(recipients, userID)
	}

	for _, userID := range target.UserIDs {
		add(userID)
	}

	var errs []error
	for _, role := range target.Roles {
		if d.roles == nil {
			errs = append(errs, errors.New("no role directory configured"))
			break
		}
		users, err := d.roles.UsersInRole(ctx, role)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, userID := range users {
			add(userID)
		}
	}

	if len(errs) > 0 {
		metrics.RecordNotificationFailure()
		return recipients, workflow.NotifyFailure(errors.Join(errs...), "failed to expand approver roles")
	}
	return recipients, nil
}

// worker 推送 worker
func (d *dbNotificationDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			d.publish(n)
		case <-d.stop:
			// 推送剩余通知后退出
			for {
				select {
				case n := <-d.queue:
					d.publish(n)
				default:
					return
				}
			}
		}
	}
}

// publish 推送到所有通道, 失败只记录日志
func (d *dbNotificationDispatcher) publish(n *model.NotificationModel) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, p := range d.publishers {
		if err := p.Publish(ctx, n); err != nil {
			metrics.RecordNotificationFailure()
			d.logger.WithError(err).WithFields(logrus.Fields{
				"notification_id": n.ID,
				"user_id":         n.UserID,
				"type":            n.Type,
			}).Warn("Failed to push notification")
		}
	}
}

// Close 停止 worker
func (d *dbNotificationDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.wg.Wait()
	})
}
