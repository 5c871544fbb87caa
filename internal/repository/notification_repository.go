package repository

import (
	"github.com/mautops/approval-engine/internal/model"
	"gorm.io/gorm"
)

// NotificationRepository 通知仓储接口
type NotificationRepository interface {
	SaveBatch(notifications []*model.NotificationModel) error
	FindByUserID(userID string, unreadOnly bool, limit int) ([]*model.NotificationModel, error)
	FindByRequestID(requestID string) ([]*model.NotificationModel, error)
	MarkRead(id string, userID string) error
}

// notificationRepository 通知仓储实现
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知仓储
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// SaveBatch 批量保存通知
func (r *notificationRepository) SaveBatch(notifications []*model.NotificationModel) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.CreateInBatches(notifications, 100).Error
}

// FindByUserID 查找用户的通知
func (r *notificationRepository) FindByUserID(userID string, unreadOnly bool, limit int) ([]*model.NotificationModel, error) {
	var notifications []*model.NotificationModel
	query := r.db.Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("created_at DESC").Find(&notifications).Error
	return notifications, err
}

// FindByRequestID 查找审批请求相关的通知
func (r *notificationRepository) FindByRequestID(requestID string) ([]*model.NotificationModel, error) {
	var notifications []*model.NotificationModel
	err := r.db.Where("request_id = ?", requestID).Order("created_at ASC").Find(&notifications).Error
	return notifications, err
}

// MarkRead 标记通知为已读
func (r *notificationRepository) MarkRead(id string, userID string) error {
	result := r.db.Model(&model.NotificationModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
