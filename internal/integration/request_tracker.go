package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/approval-engine/internal/metrics"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/utils"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SubmitInput 单据提交审批的参数
// WorkflowID 为空时使用单据类型当前启用的流程定义
type SubmitInput struct {
	EntityType   string
	EntityID     string
	EntityNumber string
	WorkflowID   string
	SubmittedBy  string
}

// RequestTracker 审批请求状态机
type RequestTracker interface {
	Submit(ctx context.Context, in SubmitInput) (*model.ApprovalRequestModel, error)
	Act(ctx context.Context, requestID string, id workflow.Identity, action workflow.ActionType, comment *string) (*model.ApprovalRequestModel, error)
	Get(ctx context.Context, requestID string) (*model.ApprovalRequestModel, error)
	GetActiveRequest(ctx context.Context, entityType string, entityID string) (*model.ApprovalRequestModel, error)
	CanAct(ctx context.Context, requestID string, id workflow.Identity) (bool, error)
	CurrentApprovers(ctx context.Context, requestID string) ([]workflow.Approver, error)
	History(ctx context.Context, requestID string) ([]*model.ApprovalActionModel, error)
	// Escalate 对停留在 expectedStepOrder 且已超时的请求执行该步骤的升级策略
	Escalate(ctx context.Context, requestID string, expectedStepOrder int, now time.Time) (workflow.EscalationAction, error)
}

// TrackerOption 状态机可选配置
type TrackerOption func(*dbRequestTracker)

// WithClock 注入时钟
func WithClock(now func() time.Time) TrackerOption {
	return func(t *dbRequestTracker) {
		t.now = now
	}
}

// WithLogger 注入日志
func WithLogger(logger *logrus.Logger) TrackerOption {
	return func(t *dbRequestTracker) {
		t.logger = logger
	}
}

// dbRequestTracker 基于数据库的审批请求状态机
// 所有状态变更通过 CompareAndSwap 在同一事务中完成
type dbRequestTracker struct {
	db         *gorm.DB
	store      WorkflowStore
	syncer     DocumentSynchronizer
	dispatcher NotificationDispatcher
	logger     *logrus.Logger
	now        func() time.Time
}

// NewRequestTracker 创建审批请求状态机
func NewRequestTracker(db *gorm.DB, store WorkflowStore, syncer DocumentSynchronizer, dispatcher NotificationDispatcher, opts ...TrackerOption) RequestTracker {
	t := &dbRequestTracker{
		db:         db,
		store:      store,
		syncer:     syncer,
		dispatcher: dispatcher,
		logger:     logrus.StandardLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// transition 一次状态变更
type transition struct {
	action    workflow.ActionType
	userID    *string // 系统动作为空
	comment   *string
	escalated bool // 由超时升级触发, 需要更新 escalation_count 和 escalated_at
}

// Submit 创建审批请求, 停留在第一个步骤
func (t *dbRequestTracker) Submit(ctx context.Context, in SubmitInput) (*model.ApprovalRequestModel, error) {
	// 1. 校验参数
	if in.EntityType == "" || in.SubmittedBy == "" {
		return nil, workflow.ValidationError("entity type and submitter are required")
	}
	if err := utils.ValidateID(in.EntityID); err != nil {
		return nil, workflow.ValidationError("invalid entity id %q: %v", in.EntityID, err)
	}

	// 2. 获取流程定义
	var def *workflow.Definition
	var err error
	if in.WorkflowID != "" {
		def, err = t.store.Get(in.WorkflowID)
	} else {
		def, err = t.store.GetActiveForEntity(in.EntityType)
	}
	if err != nil {
		return nil, err
	}
	if def.EntityType != in.EntityType {
		return nil, workflow.ValidationError("workflow %q governs %q, not %q", def.ID, def.EntityType, in.EntityType)
	}
	first, ok := def.FirstStep()
	if !ok {
		return nil, workflow.ValidationError("workflow %q has no steps", def.ID)
	}

	// 3. 构造请求和 submit 动作
	now := t.now()
	req := &model.ApprovalRequestModel{
		ID:               uuid.New().String(),
		EntityType:       in.EntityType,
		EntityID:         in.EntityID,
		EntityNumber:     in.EntityNumber,
		WorkflowID:       def.ID,
		Status:           workflow.StatusPending,
		CurrentStepID:    first.ID,
		CurrentStepOrder: first.Order,
		SubmittedBy:      in.SubmittedBy,
		SubmittedAt:      now,
		UpdatedAt:        now,
	}
	if err := req.Validate(); err != nil {
		return nil, workflow.ValidationError("%v", err)
	}
	submitter := in.SubmittedBy
	action := &model.ApprovalActionModel{
		ID:         uuid.New().String(),
		RequestID:  req.ID,
		StepID:     first.ID,
		UserID:     &submitter,
		Action:     workflow.ActionSubmit,
		ActionDate: now,
	}

	// 4. 同一单据只能有一条进行中的请求
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := repository.NewApprovalRequestRepository(tx)
		existing, err := requests.FindPendingByEntity(in.EntityType, in.EntityID)
		if err == nil {
			return workflow.InvalidTransitionError("%s %s already has pending approval request %s", in.EntityType, in.EntityID, existing.ID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check active request: %w", err)
		}
		if err := requests.Create(req); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return workflow.InvalidTransitionError("%s %s already has a pending approval request", in.EntityType, in.EntityID)
			}
			return fmt.Errorf("failed to create approval request: %w", err)
		}
		if err := repository.NewApprovalActionRepository(tx).Save(action); err != nil {
			return fmt.Errorf("failed to save submit action: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubmitted()
	metrics.RecordAction(string(workflow.ActionSubmit))
	t.logger.WithFields(logrus.Fields{
		"request_id":  req.ID,
		"entity_type": req.EntityType,
		"entity_id":   req.EntityID,
		"workflow_id": req.WorkflowID,
	}).Info("Approval request submitted")

	// 5. 通知第一步审批人
	t.notifyStepReached(ctx, req, first)

	return req, nil
}

// Act 审批人对当前步骤执行动作
func (t *dbRequestTracker) Act(ctx context.Context, requestID string, id workflow.Identity, action workflow.ActionType, comment *string) (*model.ApprovalRequestModel, error) {
	// 1. 校验动作
	switch action {
	case workflow.ActionApprove, workflow.ActionReject, workflow.ActionSendBack, workflow.ActionComment:
	case workflow.ActionSubmit, workflow.ActionEscalate, workflow.ActionDelegate:
		return nil, workflow.InvalidTransitionError("action %q cannot be performed on a pending request", action)
	default:
		return nil, workflow.ValidationError("unknown action %q", action)
	}
	normalized, err := utils.NormalizeComment(comment)
	if err != nil {
		return nil, workflow.ValidationError("invalid comment: %v", err)
	}

	// 2. 请求必须存在且处于 pending
	req, err := t.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, workflow.InvalidTransitionError("request %s is %s", req.ID, req.Status)
	}

	// 3. 只能处理当前步骤
	def, step, err := t.currentStep(req)
	if err != nil {
		return nil, err
	}
	if !workflow.Authorize(step, id) {
		return nil, workflow.ForbiddenError(step.Approvers, "user %q may not act on step %d (%s) of request %s", id.UserID, step.Order, step.Name, req.ID)
	}

	// 4. reject/send_back/comment 必须填写意见
	if normalized == nil && (action.RequiresComment() || action == workflow.ActionComment) {
		return nil, workflow.ValidationError("a comment is required to %s", action)
	}

	userID := id.UserID
	return t.apply(ctx, req, def, step, transition{
		action:  action,
		userID:  &userID,
		comment: normalized,
	}, t.now())
}

// Escalate 执行超时升级
func (t *dbRequestTracker) Escalate(ctx context.Context, requestID string, expectedStepOrder int, now time.Time) (workflow.EscalationAction, error) {
	req, err := t.Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	if !req.IsPending() || req.CurrentStepOrder != expectedStepOrder {
		return "", workflow.InvalidTransitionError("request %s is no longer pending at step %d", req.ID, expectedStepOrder)
	}

	def, step, err := t.currentStep(req)
	if err != nil {
		return "", err
	}
	deadline, ok := EscalationDeadline(req, step)
	if !ok {
		return "", workflow.InvalidTransitionError("step %d of request %s has no SLA", step.Order, req.ID)
	}
	if !now.After(deadline) {
		return "", workflow.InvalidTransitionError("request %s is not overdue until %s", req.ID, deadline.Format(time.RFC3339))
	}

	hours := *step.TimeoutHours
	switch step.Escalation {
	case workflow.EscalationAutoApprove:
		comment := fmt.Sprintf("Auto-approved: step %q exceeded its %d hour SLA", step.Name, hours)
		_, err = t.apply(ctx, req, def, step, transition{action: workflow.ActionApprove, comment: &comment, escalated: true}, now)
	case workflow.EscalationAutoReject:
		comment := fmt.Sprintf("Auto-rejected: step %q exceeded its %d hour SLA", step.Name, hours)
		_, err = t.apply(ctx, req, def, step, transition{action: workflow.ActionReject, comment: &comment, escalated: true}, now)
	default:
		comment := fmt.Sprintf("Escalated: step %q exceeded its %d hour SLA", step.Name, hours)
		var updated *model.ApprovalRequestModel
		updated, err = t.apply(ctx, req, def, step, transition{action: workflow.ActionEscalate, comment: &comment, escalated: true}, now)
		if err == nil {
			t.remind(ctx, updated, step, comment)
		}
	}
	if err != nil {
		return "", err
	}

	metrics.RecordEscalation(string(step.Escalation))
	return step.Escalation, nil
}

// EscalationDeadline 计算当前步骤的截止时间: submitted_at + timeout_hours
// 步骤没有 SLA 时返回 false
func EscalationDeadline(req *model.ApprovalRequestModel, step *workflow.Step) (time.Time, bool) {
	if step == nil || !step.HasSLA() {
		return time.Time{}, false
	}
	return req.SubmittedAt.Add(time.Duration(*step.TimeoutHours) * time.Hour), true
}

// apply 在一个事务中追加动作并更新请求
// 请求已离开 pending 或已不在该步骤时返回 InvalidTransition
func (t *dbRequestTracker) apply(ctx context.Context, req *model.ApprovalRequestModel, def *workflow.Definition, step *workflow.Step, tr transition, now time.Time) (*model.ApprovalRequestModel, error) {
	updates := map[string]interface{}{"updated_at": now}
	var next *workflow.Step

	switch tr.action {
	case workflow.ActionApprove:
		if s, ok := def.NextStep(step.Order); ok {
			next = s
			updates["current_step_id"] = s.ID
			updates["current_step_order"] = s.Order
		} else {
			updates["status"] = workflow.StatusApproved
			updates["completed_at"] = now
		}
	case workflow.ActionReject:
		updates["status"] = workflow.StatusRejected
		updates["completed_at"] = now
	case workflow.ActionSendBack:
		updates["status"] = workflow.StatusReturned
		updates["completed_at"] = now
	}
	if tr.escalated {
		updates["escalation_count"] = gorm.Expr("escalation_count + ?", 1)
		updates["escalated_at"] = now
	}

	action := &model.ApprovalActionModel{
		ID:         uuid.New().String(),
		RequestID:  req.ID,
		StepID:     step.ID,
		UserID:     tr.userID,
		Action:     tr.action,
		Comment:    tr.comment,
		ActionDate: now,
	}
	if err := action.Validate(); err != nil {
		return nil, workflow.ValidationError("%v", err)
	}

	var updated *model.ApprovalRequestModel
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := repository.NewApprovalRequestRepository(tx)

		swapped, err := requests.CompareAndSwap(req.ID, step.Order, updates)
		if err != nil {
			return fmt.Errorf("failed to update request %s: %w", req.ID, err)
		}
		if !swapped {
			return workflow.InvalidTransitionError("request %s is no longer pending at step %d", req.ID, step.Order)
		}

		if err := repository.NewApprovalActionRepository(tx).Save(action); err != nil {
			return fmt.Errorf("failed to save %s action: %w", tr.action, err)
		}

		updated, err = requests.FindByID(req.ID)
		if err != nil {
			return fmt.Errorf("failed to reload request %s: %w", req.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordAction(string(tr.action))
	t.logger.WithFields(logrus.Fields{
		"request_id":  updated.ID,
		"entity_type": updated.EntityType,
		"entity_id":   updated.EntityID,
		"action":      tr.action,
		"step_order":  step.Order,
		"status":      updated.Status,
		"system":      tr.userID == nil,
	}).Info("Approval action recorded")

	// 事务提交后的同步和通知失败不影响结果
	switch {
	case updated.Status.IsTerminal():
		metrics.RecordCompleted(string(updated.Status))
		t.syncDocument(ctx, updated)
		t.notifySubmitter(ctx, updated, tr.comment)
	case next != nil:
		t.notifyStepReached(ctx, updated, next)
	}

	return updated, nil
}

// Get 获取审批请求
func (t *dbRequestTracker) Get(ctx context.Context, requestID string) (*model.ApprovalRequestModel, error) {
	req, err := repository.NewApprovalRequestRepository(t.db.WithContext(ctx)).FindByID(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NotFoundError("approval request %s not found", requestID)
		}
		return nil, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}
	return req, nil
}

// GetActiveRequest 获取单据进行中的审批请求
func (t *dbRequestTracker) GetActiveRequest(ctx context.Context, entityType string, entityID string) (*model.ApprovalRequestModel, error) {
	req, err := repository.NewApprovalRequestRepository(t.db.WithContext(ctx)).FindPendingByEntity(entityType, entityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NotFoundError("no active approval request for %s %s", entityType, entityID)
		}
		return nil, fmt.Errorf("failed to load active request: %w", err)
	}
	return req, nil
}

// CanAct 判断身份能否处理请求当前步骤, 非 pending 请求任何人都不能处理
func (t *dbRequestTracker) CanAct(ctx context.Context, requestID string, id workflow.Identity) (bool, error) {
	req, err := t.Get(ctx, requestID)
	if err != nil {
		return false, err
	}
	if !req.IsPending() {
		return false, nil
	}
	_, step, err := t.currentStep(req)
	if err != nil {
		return false, err
	}
	return workflow.Authorize(step, id), nil
}

// CurrentApprovers 当前步骤的审批人, 请求已结束时返回空
func (t *dbRequestTracker) CurrentApprovers(ctx context.Context, requestID string) ([]workflow.Approver, error) {
	req, err := t.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return []workflow.Approver{}, nil
	}
	_, step, err := t.currentStep(req)
	if err != nil {
		return nil, err
	}
	return step.Approvers, nil
}

// History 审批动作记录
func (t *dbRequestTracker) History(ctx context.Context, requestID string) ([]*model.ApprovalActionModel, error) {
	if _, err := t.Get(ctx, requestID); err != nil {
		return nil, err
	}
	actions, err := repository.NewApprovalActionRepository(t.db.WithContext(ctx)).FindByRequestID(requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of request %s: %w", requestID, err)
	}
	return actions, nil
}

// currentStep 加载请求所属流程定义和当前步骤
func (t *dbRequestTracker) currentStep(req *model.ApprovalRequestModel) (*workflow.Definition, *workflow.Step, error) {
	def, err := t.store.Get(req.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	step, ok := def.StepByOrder(req.CurrentStepOrder)
	if !ok {
		return nil, nil, fmt.Errorf("workflow %q has no step %d referenced by request %s", def.ID, req.CurrentStepOrder, req.ID)
	}
	return def, step, nil
}

// syncDocument 同步单据状态, 失败只记录日志
func (t *dbRequestTracker) syncDocument(ctx context.Context, req *model.ApprovalRequestModel) {
	if t.syncer == nil {
		return
	}
	if err := t.syncer.Sync(ctx, req); err != nil {
		metrics.RecordSyncFailure(req.EntityType)
		t.logger.WithError(err).WithFields(logrus.Fields{
			"request_id":  req.ID,
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
			"status":      req.Status,
		}).Warn("Document status sync failed")
	}
}

// notifyStepReached 通知步骤审批人有待处理的审批
func (t *dbRequestTracker) notifyStepReached(ctx context.Context, req *model.ApprovalRequestModel, step *workflow.Step) {
	users, roles := workflow.SplitApprovers(step.Approvers)
	if len(users) == 0 && len(roles) == 0 {
		t.logger.WithFields(logrus.Fields{
			"request_id":  req.ID,
			"workflow_id": req.WorkflowID,
			"step_order":  step.Order,
		}).Warn("Step has no approvers, nobody can act on it")
		return
	}
	t.notify(ctx, req, NotificationTarget{UserIDs: users, Roles: roles}, NotificationMessage{
		Type:    NotificationApprovalRequired,
		Title:   fmt.Sprintf("Approval required: %s %s", req.EntityType, displayNumber(req)),
		Message: fmt.Sprintf("%s %s is waiting for your approval at step %d (%s).", req.EntityType, displayNumber(req), step.Order, step.Name),
		Payload: map[string]interface{}{"step_order": step.Order, "step_name": step.Name},
	})
}

// notifySubmitter 通知提交人审批结果
func (t *dbRequestTracker) notifySubmitter(ctx context.Context, req *model.ApprovalRequestModel, comment *string) {
	var notificationType, verb string
	switch req.Status {
	case workflow.StatusApproved:
		notificationType, verb = NotificationApproved, "approved"
	case workflow.StatusRejected:
		notificationType, verb = NotificationRejected, "rejected"
	case workflow.StatusReturned:
		notificationType, verb = NotificationReturned, "sent back for revision"
	default:
		return
	}

	message := fmt.Sprintf("%s %s was %s.", req.EntityType, displayNumber(req), verb)
	if comment != nil {
		message += " Comment: " + *comment
	}
	t.notify(ctx, req, NotificationTarget{UserIDs: []string{req.SubmittedBy}}, NotificationMessage{
		Type:    notificationType,
		Title:   fmt.Sprintf("%s %s %s", req.EntityType, displayNumber(req), verb),
		Message: message,
	})
}

// remind 超时提醒: 提交人和当前步骤所有审批人
func (t *dbRequestTracker) remind(ctx context.Context, req *model.ApprovalRequestModel, step *workflow.Step, reason string) {
	users, roles := workflow.SplitApprovers(step.Approvers)
	t.notify(ctx, req, NotificationTarget{
		UserIDs: append([]string{req.SubmittedBy}, users...),
		Roles:   roles,
	}, NotificationMessage{
		Type:    NotificationEscalationReminder,
		Title:   fmt.Sprintf("Overdue approval: %s %s", req.EntityType, displayNumber(req)),
		Message: reason,
		Payload: map[string]interface{}{"step_order": step.Order, "escalation_count": req.EscalationCount},
	})
}

// notify 分发通知, 失败只记录日志
func (t *dbRequestTracker) notify(ctx context.Context, req *model.ApprovalRequestModel, target NotificationTarget, msg NotificationMessage) {
	if t.dispatcher == nil {
		return
	}
	msg.EntityType = req.EntityType
	msg.EntityID = req.EntityID
	msg.RequestID = req.ID
	if _, err := t.dispatcher.Dispatch(ctx, target, msg); err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": req.ID,
			"type":       msg.Type,
		}).Warn("Notification dispatch failed")
	}
}

// displayNumber 单据展示编号, 没有编号时使用单据 ID
func displayNumber(req *model.ApprovalRequestModel) string {
	if req.EntityNumber != "" {
		return req.EntityNumber
	}
	return req.EntityID
}
