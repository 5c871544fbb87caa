package model_test

import (
	"testing"
	"time"

	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/stretchr/testify/assert"
)

// TestApprovalRequestModel_Validate 测试审批请求模型验证
func TestApprovalRequestModel_Validate(t *testing.T) {
	req := &model.ApprovalRequestModel{
		ID:          "req-1",
		EntityType:  "requisition",
		EntityID:    "REQ-001",
		WorkflowID:  "wf-1",
		Status:      workflow.StatusPending,
		SubmittedBy: "U0",
		SubmittedAt: time.Now(),
	}
	assert.NoError(t, req.Validate())
	assert.True(t, req.IsPending())
	assert.Equal(t, "approval_requests", req.TableName())

	req.EscalationCount = -1
	assert.Error(t, req.Validate())

	req.EscalationCount = 0
	req.EntityID = ""
	assert.Error(t, req.Validate())
}

// TestApprovalActionModel_Validate reject 必须有意见
func TestApprovalActionModel_Validate(t *testing.T) {
	action := &model.ApprovalActionModel{
		ID:        "act-1",
		RequestID: "req-1",
		Action:    workflow.ActionReject,
	}
	assert.Error(t, action.Validate())

	comment := "price too high"
	action.Comment = &comment
	assert.NoError(t, action.Validate())
	assert.True(t, action.IsSystem())
}

func TestWorkflowModel_Validate(t *testing.T) {
	wf := &model.WorkflowModel{ID: "wf-1", EntityType: "supplier", Name: "Supplier onboarding"}
	assert.NoError(t, wf.Validate())

	step := &model.WorkflowStepModel{ID: "s1", WorkflowID: "wf-1", StepOrder: 0}
	assert.Error(t, step.Validate())
}
