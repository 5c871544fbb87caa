package model

import (
	"errors"
	"time"
)

// WorkflowModel 审批流程定义数据模型
type WorkflowModel struct {
	ID         string              `gorm:"primaryKey;type:varchar(64)" json:"id"`
	EntityType string              `gorm:"type:varchar(64);not null;index" json:"entity_type"`
	Name       string              `gorm:"type:varchar(255);not null" json:"name"`
	IsActive   bool                `gorm:"not null;index" json:"is_active"`
	Steps      []WorkflowStepModel `gorm:"foreignKey:WorkflowID;constraint:OnDelete:CASCADE" json:"steps"`
	CreatedAt  time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time           `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (WorkflowModel) TableName() string {
	return "workflows"
}

// Validate 验证流程定义模型
func (wm *WorkflowModel) Validate() error {
	if wm.ID == "" {
		return errors.New("workflow ID is required")
	}
	if wm.EntityType == "" {
		return errors.New("entity type is required")
	}
	if wm.Name == "" {
		return errors.New("workflow name is required")
	}
	return nil
}

// WorkflowStepModel 审批步骤数据模型
type WorkflowStepModel struct {
	ID               string              `gorm:"primaryKey;type:varchar(64)" json:"id"`
	WorkflowID       string              `gorm:"type:varchar(64);not null;uniqueIndex:idx_workflow_step_order" json:"workflow_id"`
	StepOrder        int                 `gorm:"not null;uniqueIndex:idx_workflow_step_order" json:"step_order"`
	StepName         string              `gorm:"type:varchar(255);not null" json:"step_name"`
	TimeoutHours     *int                `json:"timeout_hours,omitempty"` // 为空表示没有 SLA
	EscalationAction string              `gorm:"type:varchar(32);not null;default:notify" json:"escalation_action"`
	Approvers        []StepApproverModel `gorm:"foreignKey:StepID;constraint:OnDelete:CASCADE" json:"approvers"`
}

// TableName 指定表名
func (WorkflowStepModel) TableName() string {
	return "workflow_steps"
}

// Validate 验证步骤模型
func (sm *WorkflowStepModel) Validate() error {
	if sm.ID == "" {
		return errors.New("step ID is required")
	}
	if sm.WorkflowID == "" {
		return errors.New("workflow ID is required")
	}
	if sm.StepOrder < 1 {
		return errors.New("step order must be positive")
	}
	return nil
}

// StepApproverModel 步骤审批人数据模型
type StepApproverModel struct {
	ID            string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	StepID        string `gorm:"type:varchar(64);not null;index" json:"step_id"`
	Position      int    `gorm:"not null" json:"position"`
	ApproverType  string `gorm:"type:varchar(32);not null" json:"approver_type"`   // user/role
	ApproverValue string `gorm:"type:varchar(128);not null" json:"approver_value"` // 用户 ID 或角色名
}

// TableName 指定表名
func (StepApproverModel) TableName() string {
	return "workflow_step_approvers"
}
