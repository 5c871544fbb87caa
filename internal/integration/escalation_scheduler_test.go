package integration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEscalation_Notify 超时 notify: 记录 escalate 动作并提醒提交人和审批人
func TestEscalation_Notify(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.assignRole(t, "F1", "finance")
	e.assignRole(t, "F2", "finance")
	def := e.importWorkflow(t, singleStep("wf-po", hours(24), workflow.EscalationNotify,
		workflow.RoleApprover("finance"), workflow.UserApprover("CFO")))

	req := e.submit(t, def, "PO-1")
	before := len(e.notifications(t, req.ID))

	result, err := e.scheduler.RunEscalationSweep(ctx, req.SubmittedAt.Add(30*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, []string{req.ID}, result.TouchedRequestIDs)

	after, err := e.tracker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, after.Status)
	assert.Equal(t, 1, after.EscalationCount)
	require.NotNil(t, after.EscalatedAt)

	history := e.actions(t, req.ID)
	assert.Equal(t, []workflow.ActionType{workflow.ActionSubmit, workflow.ActionEscalate}, kinds(history))
	assert.Nil(t, history[1].UserID)

	// 每个审批人一条, 提交人一条
	reminders := e.notifications(t, req.ID)[before:]
	recipients := make([]string, 0, len(reminders))
	for _, n := range reminders {
		assert.Equal(t, integration.NotificationEscalationReminder, n.Type)
		recipients = append(recipients, n.UserID)
	}
	assert.ElementsMatch(t, []string{"submitter", "CFO", "F1", "F2"}, recipients)
}

// TestEscalation_NotifyRepeats notify 每次扫描都会再次提醒, 计数单调递增
func TestEscalation_NotifyRepeats(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	def := e.importWorkflow(t, singleStep("wf-po", hours(24), "", workflow.UserApprover("F1")))
	req := e.submit(t, def, "PO-2")

	now := req.SubmittedAt.Add(25 * time.Hour)
	last := 0
	for i := 1; i <= 3; i++ {
		_, err := e.scheduler.RunEscalationSweep(ctx, now)
		require.NoError(t, err)

		after, err := e.tracker.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, after.EscalationCount, last)
		assert.Equal(t, i, after.EscalationCount)
		last = after.EscalationCount
		now = now.Add(time.Hour)
	}
}

// TestEscalation_SkipsWithinDeadline 未超时或没有 SLA 的请求不处理
func TestEscalation_SkipsWithinDeadline(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	withSLA := e.importWorkflow(t, singleStep("wf-sla", hours(24), workflow.EscalationAutoApprove, workflow.UserApprover("F1")))
	noSLA := e.importWorkflow(t, &workflow.Definition{
		ID: "wf-none", EntityType: "supplier", IsActive: true,
		Steps: []workflow.Step{{Order: 1, TimeoutHours: hours(0), Escalation: workflow.EscalationAutoReject,
			Approvers: []workflow.Approver{workflow.UserApprover("F1")}}},
	})

	a := e.submit(t, withSLA, "PO-3")
	e.submit(t, noSLA, "SUP-3")

	// 恰好到期不算超时
	result, err := e.scheduler.RunEscalationSweep(ctx, a.SubmittedAt.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Examined)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.Empty(t, result.TouchedRequestIDs)

	result, err = e.scheduler.RunEscalationSweep(ctx, a.SubmittedAt.Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, result.TouchedRequestIDs)
}

// TestEscalation_AutoApproveIdempotent 连续两次扫描只通过一次
func TestEscalation_AutoApproveIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	def := e.importWorkflow(t, singleStep("wf-po", hours(8), workflow.EscalationAutoApprove, workflow.UserApprover("F1")))
	req := e.submit(t, def, "PO-4")
	now := req.SubmittedAt.Add(9 * time.Hour)

	first, err := e.scheduler.RunEscalationSweep(ctx, now)
	require.NoError(t, err)
	second, err := e.scheduler.RunEscalationSweep(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 1, first.ProcessedCount)
	assert.Equal(t, 0, second.ProcessedCount)
	assert.Equal(t, 0, second.Examined)

	after, err := e.tracker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusApproved, after.Status)
	assert.Equal(t, 1, after.EscalationCount)
	assert.Equal(t, []workflow.Status{workflow.StatusApproved}, e.syncer.Calls())

	history := e.actions(t, req.ID)
	require.Len(t, history, 2)
	assert.Equal(t, workflow.ActionApprove, history[1].Action)
	assert.True(t, history[1].IsSystem())
	assert.Contains(t, *history[1].Comment, "8 hour SLA")
}

// TestEscalation_AutoApproveAdvances 非最后一步自动通过后进入下一步
func TestEscalation_AutoApproveAdvances(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	def := buyerThenU1("wf-adv")
	def.Steps[0].TimeoutHours = hours(2)
	def.Steps[0].Escalation = workflow.EscalationAutoApprove
	e.importWorkflow(t, def)
	req := e.submit(t, def, "REQ-ADV")

	result, err := e.scheduler.RunEscalationSweep(ctx, req.SubmittedAt.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)

	after, err := e.tracker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, after.Status)
	assert.Equal(t, 2, after.CurrentStepOrder)

	// 第二步没有 SLA, 再次扫描不处理
	result, err = e.scheduler.RunEscalationSweep(ctx, req.SubmittedAt.Add(300*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
}

// TestEscalation_AutoReject 超时自动驳回
func TestEscalation_AutoReject(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	def := e.importWorkflow(t, singleStep("wf-po", hours(48), workflow.EscalationAutoReject, workflow.UserApprover("F1")))
	req := e.submit(t, def, "PO-5")

	_, err := e.scheduler.RunEscalationSweep(ctx, req.SubmittedAt.Add(49*time.Hour))
	require.NoError(t, err)

	after, err := e.tracker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusRejected, after.Status)
	assert.NotNil(t, after.CompletedAt)
	assert.Equal(t, []workflow.Status{workflow.StatusRejected}, e.syncer.Calls())
}

// TestEscalation_StaleExpectation 人工操作先完成时升级返回 InvalidTransition
func TestEscalation_StaleExpectation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	def := buyerThenU1("wf-stale")
	def.Steps[0].TimeoutHours = hours(1)
	def.Steps[0].Escalation = workflow.EscalationAutoApprove
	e.importWorkflow(t, def)
	req := e.submit(t, def, "REQ-STALE")

	_, err := e.tracker.Act(ctx, req.ID, workflow.Identity{UserID: "B1", Roles: []string{"buyer"}}, workflow.ActionApprove, nil)
	require.NoError(t, err)

	_, err = e.tracker.Escalate(ctx, req.ID, 1, req.SubmittedAt.Add(2*time.Hour))
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))

	after, err := e.tracker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.CurrentStepOrder)
	assert.Equal(t, 0, after.EscalationCount)
}

// TestEscalation_RaceWithHumanApprove 人工审批与自动通过并发时只提交一次
func TestEscalation_RaceWithHumanApprove(t *testing.T) {
	for i := 0; i < 5; i++ {
		e := newEngine(t)
		ctx := context.Background()
		def := e.importWorkflow(t, singleStep("wf-race", hours(1), workflow.EscalationAutoApprove, workflow.UserApprover("F1")))
		req := e.submit(t, def, "PO-RACE")
		now := req.SubmittedAt.Add(2 * time.Hour)

		var wg sync.WaitGroup
		var humanErr, sweepErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, humanErr = e.tracker.Act(ctx, req.ID, workflow.Identity{UserID: "F1"}, workflow.ActionApprove, nil)
		}()
		go func() {
			defer wg.Done()
			_, sweepErr = e.tracker.Escalate(ctx, req.ID, 1, now)
		}()
		wg.Wait()

		// 恰好一个成功, 另一个收到 InvalidTransition
		if humanErr == nil {
			require.Error(t, sweepErr)
			assert.True(t, errors.Is(sweepErr, workflow.ErrInvalidTransition))
		} else {
			require.NoError(t, sweepErr)
			assert.True(t, errors.Is(humanErr, workflow.ErrInvalidTransition))
		}

		approvals := 0
		for _, a := range e.actions(t, req.ID) {
			if a.Action == workflow.ActionApprove {
				approvals++
			}
		}
		assert.Equal(t, 1, approvals)
		assert.Equal(t, []workflow.Status{workflow.StatusApproved}, e.syncer.Calls())
	}
}

// TestEscalation_MonotonicAcrossMixedSweeps 多次扫描期间计数不减少
func TestEscalation_MonotonicAcrossMixedSweeps(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	notify := e.importWorkflow(t, singleStep("wf-notify", hours(1), workflow.EscalationNotify, workflow.UserApprover("F1")))
	req := e.submit(t, notify, "PO-M")

	counts := []int{}
	for _, offset := range []time.Duration{0, 2 * time.Hour, 2 * time.Hour, 5 * time.Hour} {
		_, err := e.scheduler.RunEscalationSweep(ctx, req.SubmittedAt.Add(offset))
		require.NoError(t, err)
		after, err := e.tracker.Get(ctx, req.ID)
		require.NoError(t, err)
		counts = append(counts, after.EscalationCount)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, counts)
}
