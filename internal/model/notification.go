package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// NotificationModel 通知数据模型
type NotificationModel struct {
	ID         string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID     string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Type       string         `gorm:"type:varchar(64);not null" json:"type"`
	Title      string         `gorm:"type:varchar(255);not null" json:"title"`
	Message    string         `gorm:"type:text" json:"message"`
	EntityType string         `gorm:"type:varchar(64)" json:"entity_type"`
	EntityID   string         `gorm:"type:varchar(64)" json:"entity_id"`
	RequestID  string         `gorm:"type:varchar(64);index" json:"request_id"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
	IsRead     bool           `gorm:"not null;default:false" json:"is_read"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (NotificationModel) TableName() string {
	return "notifications"
}

// Validate 验证通知模型
func (nm *NotificationModel) Validate() error {
	if nm.ID == "" {
		return errors.New("notification ID is required")
	}
	if nm.UserID == "" {
		return errors.New("user ID is required")
	}
	if nm.Type == "" {
		return errors.New("notification type is required")
	}
	return nil
}
