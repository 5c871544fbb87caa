package workflow_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStepDefinition() *workflow.Definition {
	return &workflow.Definition{
		ID:         "wf-1",
		EntityType: "requisition",
		Steps: []workflow.Step{
			{Order: 1, Name: "Buyer", Approvers: []workflow.Approver{workflow.RoleApprover("buyer")}},
			{Order: 2, Name: "Manager", Approvers: []workflow.Approver{workflow.UserApprover("U1")}},
		},
	}
}

// TestDefinition_Navigation 测试步骤查找
func TestDefinition_Navigation(t *testing.T) {
	def := twoStepDefinition()

	first, ok := def.FirstStep()
	require.True(t, ok)
	assert.Equal(t, "Buyer", first.Name)

	next, ok := def.NextStep(1)
	require.True(t, ok)
	assert.Equal(t, 2, next.Order)

	_, ok = def.NextStep(2)
	assert.False(t, ok)
}

// TestDefinition_Validate 测试流程定义校验
func TestDefinition_Validate(t *testing.T) {
	assert.NoError(t, twoStepDefinition().Validate())

	gap := twoStepDefinition()
	gap.Steps[1].Order = 3
	assert.Error(t, gap.Validate())

	empty := &workflow.Definition{ID: "wf-2", EntityType: "supplier"}
	assert.Error(t, empty.Validate())

	badEscalation := twoStepDefinition()
	badEscalation.Steps[0].Escalation = "escalate_to_ceo"
	assert.Error(t, badEscalation.Validate())

	unknown := twoStepDefinition()
	unknown.Steps[0].Approvers = []workflow.Approver{{Type: workflow.ApproverUnknown, Value: "x"}}
	assert.Error(t, unknown.Validate())
}

func TestParseEscalationAction(t *testing.T) {
	a, err := workflow.ParseEscalationAction("")
	require.NoError(t, err)
	assert.Equal(t, workflow.EscalationNotify, a)

	a, err = workflow.ParseEscalationAction("auto_reject")
	require.NoError(t, err)
	assert.Equal(t, workflow.EscalationAutoReject, a)

	_, err = workflow.ParseEscalationAction("page")
	assert.Error(t, err)
}

func TestStep_HasSLA(t *testing.T) {
	zero, day := 0, 24
	assert.False(t, (&workflow.Step{}).HasSLA())
	assert.False(t, (&workflow.Step{TimeoutHours: &zero}).HasSLA())
	assert.True(t, (&workflow.Step{TimeoutHours: &day}).HasSLA())
}

// TestApproverType_JSON 审批人类型按名称序列化
func TestApproverType_JSON(t *testing.T) {
	data, err := json.Marshal(workflow.RoleApprover("buyer"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"approver_type":"role","approver_value":"buyer"}`, string(data))

	var a workflow.Approver
	require.NoError(t, json.Unmarshal([]byte(`{"approver_type":"group","approver_value":"g"}`), &a))
	assert.Equal(t, workflow.ApproverUnknown, a.Type)
}

// TestError_Is 测试错误类别比较
func TestError_Is(t *testing.T) {
	err := workflow.ForbiddenError([]workflow.Approver{workflow.UserApprover("U1")}, "user %s may not act", "U2")
	wrapped := fmt.Errorf("act: %w", err)

	assert.True(t, errors.Is(wrapped, workflow.ErrForbidden))
	assert.False(t, errors.Is(wrapped, workflow.ErrNotFound))
	assert.Equal(t, workflow.KindForbidden, workflow.KindOf(wrapped))
	assert.Equal(t, workflow.Kind(""), workflow.KindOf(errors.New("boom")))

	var we *workflow.Error
	require.True(t, errors.As(wrapped, &we))
	assert.Equal(t, []string{"user:U1"}, workflow.DescribeApprovers(we.Approvers))
}
