package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mautops/approval-engine/internal/service"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestApprovalService_SubmitAndAct 测试提交和审批
func TestApprovalService_SubmitAndAct(t *testing.T) {
	f := newFixture(t)
	f.importRequisition(t)
	ctx := context.Background()

	submitter := workflow.Identity{UserID: "S1"}
	req, err := f.approvals.Submit(ctx, submitter, &service.SubmitRequest{EntityType: "requisition", EntityID: "REQ-1"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, req.Status)
	assert.Equal(t, []string{"S1@" + req.ID}, f.access.grants)

	buyer := workflow.Identity{UserID: "B1", Roles: []string{"buyer"}}
	view, err := f.approvals.Get(ctx, req.ID, buyer)
	require.NoError(t, err)
	assert.True(t, view.CanAct)
	assert.Equal(t, []workflow.Approver{workflow.RoleApprover("buyer")}, view.CurrentApprovers)

	view, err = f.approvals.Get(ctx, req.ID, submitter)
	require.NoError(t, err)
	assert.False(t, view.CanAct)

	req, err = f.approvals.Act(ctx, req.ID, buyer, &service.ActRequest{Action: "approve"})
	require.NoError(t, err)
	assert.Equal(t, 2, req.CurrentStepOrder)

	_, err = f.approvals.Act(ctx, req.ID, buyer, &service.ActRequest{Action: "approve"})
	assert.True(t, errors.Is(err, workflow.ErrForbidden))

	req, err = f.approvals.Act(ctx, req.ID, workflow.Identity{UserID: "U1"}, &service.ActRequest{Action: "approve"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, req.Status)

	active, err := f.approvals.GetActive(ctx, "requisition", "REQ-1")
	assert.Nil(t, active)
	assert.True(t, errors.Is(err, workflow.ErrNotFound))

	history, err := f.approvals.History(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	view, err = f.approvals.Get(ctx, req.ID, workflow.Identity{UserID: "U1"})
	require.NoError(t, err)
	assert.False(t, view.CanAct)
	assert.Empty(t, view.CurrentApprovers)
}

// TestApprovalService_Validation 测试参数校验
func TestApprovalService_Validation(t *testing.T) {
	f := newFixture(t)
	f.importRequisition(t)
	ctx := context.Background()

	_, err := f.approvals.Submit(ctx, workflow.Identity{}, &service.SubmitRequest{EntityType: "requisition", EntityID: "REQ-1"})
	assert.True(t, errors.Is(err, workflow.ErrValidation))

	req, err := f.approvals.Submit(ctx, workflow.Identity{UserID: "S1"}, &service.SubmitRequest{EntityType: "requisition", EntityID: "REQ-1"})
	require.NoError(t, err)

	_, err = f.approvals.Act(ctx, req.ID, workflow.Identity{UserID: "B1", Roles: []string{"buyer"}}, &service.ActRequest{Action: "escalate"})
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))

	_, err = f.approvals.Act(ctx, req.ID, workflow.Identity{UserID: "B1", Roles: []string{"buyer"}}, &service.ActRequest{Action: "reject"})
	assert.True(t, errors.Is(err, workflow.ErrValidation))

	_, err = f.approvals.History(ctx, "missing")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

// TestApprovalService_AccessFailureIgnored 权限关系写入失败不影响提交
func TestApprovalService_AccessFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.importRequisition(t)
	f.access.err = errors.New("openfga unavailable")

	req, err := f.approvals.Submit(context.Background(), workflow.Identity{UserID: "S1"}, &service.SubmitRequest{EntityType: "requisition", EntityID: "REQ-9"})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
}
