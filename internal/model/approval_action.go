package model

import (
	"errors"
	"time"

	"github.com/mautops/approval-engine/internal/workflow"
)

// ApprovalActionModel 审批动作数据模型, 只追加不修改
type ApprovalActionModel struct {
	ID         string              `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RequestID  string              `gorm:"type:varchar(64);not null;index" json:"request_id"`
	StepID     string              `gorm:"type:varchar(64)" json:"step_id"`
	UserID     *string             `gorm:"type:varchar(64);index" json:"user_id"` // 系统动作为空
	Action     workflow.ActionType `gorm:"type:varchar(32);not null" json:"action"`
	Comment    *string             `gorm:"type:text" json:"comment,omitempty"`
	ActionDate time.Time           `gorm:"not null;index" json:"action_date"`
}

// TableName 指定表名
func (ApprovalActionModel) TableName() string {
	return "approval_actions"
}

// Validate 验证审批动作模型
func (am *ApprovalActionModel) Validate() error {
	if am.ID == "" {
		return errors.New("action ID is required")
	}
	if am.RequestID == "" {
		return errors.New("request ID is required")
	}
	if am.Action == "" {
		return errors.New("action is required")
	}
	if am.Action.RequiresComment() && (am.Comment == nil || *am.Comment == "") {
		return errors.New("comment is required for " + string(am.Action))
	}
	return nil
}

// IsSystem 是否为系统发起的动作
func (am *ApprovalActionModel) IsSystem() bool {
	return am.UserID == nil
}
