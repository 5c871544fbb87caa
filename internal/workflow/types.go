// Package workflow 定义审批流程的领域类型、授权判定和错误类型
package workflow

import (
	"fmt"
	"strings"
)

// Status 审批请求状态
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusReturned Status = "returned"
)

// IsTerminal 是否为终态
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusReturned
}

// ActionType 审批动作类型
type ActionType string

const (
	ActionSubmit   ActionType = "submit"
	ActionApprove  ActionType = "approve"
	ActionReject   ActionType = "reject"
	ActionSendBack ActionType = "send_back"
	ActionComment  ActionType = "comment"
	ActionEscalate ActionType = "escalate"
	ActionDelegate ActionType = "delegate"
)

// IsHumanAction 是否为审批人可以直接发起的动作
func (a ActionType) IsHumanAction() bool {
	switch a {
	case ActionApprove, ActionReject, ActionSendBack, ActionComment:
		return true
	}
	return false
}

// RequiresComment reject 和 send_back 必须附带意见
func (a ActionType) RequiresComment() bool {
	return a == ActionReject || a == ActionSendBack
}

// EscalationAction 超时升级策略
type EscalationAction string

const (
	EscalationNotify      EscalationAction = "notify"
	EscalationAutoApprove EscalationAction = "auto_approve"
	EscalationAutoReject  EscalationAction = "auto_reject"
)

// ParseEscalationAction 解析升级策略, 空值默认为 notify
func ParseEscalationAction(s string) (EscalationAction, error) {
	switch EscalationAction(strings.TrimSpace(s)) {
	case "", EscalationNotify:
		return EscalationNotify, nil
	case EscalationAutoApprove:
		return EscalationAutoApprove, nil
	case EscalationAutoReject:
		return EscalationAutoReject, nil
	}
	return "", fmt.Errorf("unknown escalation action %q", s)
}

// Step 审批步骤
type Step struct {
	ID           string           `json:"id"`
	Order        int              `json:"step_order"`
	Name         string           `json:"step_name"`
	TimeoutHours *int             `json:"timeout_hours,omitempty"`
	Escalation   EscalationAction `json:"escalation_action"`
	Approvers    []Approver       `json:"approvers"`
}

// HasSLA 步骤是否配置了有效的超时时间
func (s *Step) HasSLA() bool {
	return s.TimeoutHours != nil && *s.TimeoutHours > 0
}

// Definition 审批流程定义, 步骤按 Order 升序排列
type Definition struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	Steps      []Step `json:"steps"`
}

// StepByOrder 根据顺序号查找步骤
func (d *Definition) StepByOrder(order int) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].Order == order {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// FirstStep 返回第一个步骤
func (d *Definition) FirstStep() (*Step, bool) {
	return d.StepByOrder(1)
}

// NextStep 返回 order 之后的步骤, 不存在时表示 order 为最后一步
func (d *Definition) NextStep(order int) (*Step, bool) {
	return d.StepByOrder(order + 1)
}

// Validate 校验步骤顺序连续 (1..N) 且审批人类型合法
func (d *Definition) Validate() error {
	if d.EntityType == "" {
		return fmt.Errorf("workflow %q: entity type is required", d.ID)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %q: at least one step is required", d.ID)
	}
	for i, step := range d.Steps {
		if step.Order != i+1 {
			return fmt.Errorf("workflow %q: step orders must be contiguous from 1, got %d at position %d", d.ID, step.Order, i+1)
		}
		if _, err := ParseEscalationAction(string(step.Escalation)); err != nil {
			return fmt.Errorf("workflow %q step %d: %w", d.ID, step.Order, err)
		}
		for _, a := range step.Approvers {
			if a.Type == ApproverUnknown {
				return fmt.Errorf("workflow %q step %d: unsupported approver type", d.ID, step.Order)
			}
			if strings.TrimSpace(a.Value) == "" {
				return fmt.Errorf("workflow %q step %d: approver value is required", d.ID, step.Order)
			}
		}
	}
	return nil
}

// Identity 已解析的调用方身份
type Identity struct {
	UserID string
	Roles  []string
}

// HasRole 是否拥有指定角色
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}
