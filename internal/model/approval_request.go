package model

import (
	"errors"
	"time"

	"github.com/mautops/approval-engine/internal/workflow"
)

// ApprovalRequestModel 审批请求数据模型
// 同一单据 (entity_type, entity_id) 同时最多一条 pending 记录, 由部分唯一索引保证
type ApprovalRequestModel struct {
	ID               string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	EntityType       string          `gorm:"type:varchar(64);not null;index:idx_approval_requests_entity" json:"entity_type"`
	EntityID         string          `gorm:"type:varchar(64);not null;index:idx_approval_requests_entity" json:"entity_id"`
	EntityNumber     string          `gorm:"type:varchar(128)" json:"entity_number"`
	WorkflowID       string          `gorm:"type:varchar(64);not null;index" json:"workflow_id"`
	Status           workflow.Status `gorm:"type:varchar(32);not null;index" json:"status"`
	CurrentStepID    string          `gorm:"type:varchar(64)" json:"current_step_id"`
	CurrentStepOrder int             `gorm:"not null" json:"current_step_order"`
	SubmittedBy      string          `gorm:"type:varchar(64);not null;index" json:"submitted_by"`
	SubmittedAt      time.Time       `gorm:"not null;index" json:"submitted_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	EscalatedAt      *time.Time      `json:"escalated_at,omitempty"`
	EscalationCount  int             `gorm:"not null;default:0" json:"escalation_count"`
	UpdatedAt        time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (ApprovalRequestModel) TableName() string {
	return "approval_requests"
}

// Validate 验证审批请求模型
func (rm *ApprovalRequestModel) Validate() error {
	if rm.ID == "" {
		return errors.New("request ID is required")
	}
	if rm.EntityType == "" || rm.EntityID == "" {
		return errors.New("entity type and entity ID are required")
	}
	if rm.WorkflowID == "" {
		return errors.New("workflow ID is required")
	}
	if rm.SubmittedBy == "" {
		return errors.New("submitted by is required")
	}
	if rm.Status == "" {
		return errors.New("request status is required")
	}
	if rm.EscalationCount < 0 {
		return errors.New("escalation count must not be negative")
	}
	return nil
}

// IsPending 是否仍在审批中
func (rm *ApprovalRequestModel) IsPending() bool {
	return rm.Status == workflow.StatusPending
}
