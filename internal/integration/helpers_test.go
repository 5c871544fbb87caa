package integration_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/approval-engine/internal/config"
	"github.com/mautops/approval-engine/internal/database"
	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB 创建独立的内存数据库, 单连接保证并发测试共享同一个库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// testClock 每次读取前进一秒, 保证动作记录有序
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingSynchronizer 记录同步调用
type recordingSynchronizer struct {
	mu    sync.Mutex
	calls []workflow.Status
	err   error
}

func (s *recordingSynchronizer) Sync(_ context.Context, req *model.ApprovalRequestModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req.Status)
	return s.err
}

func (s *recordingSynchronizer) Calls() []workflow.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]workflow.Status(nil), s.calls...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func hours(h int) *int {
	return &h
}

func strPtr(s string) *string {
	return &s
}

// engine 测试用的完整引擎
type engine struct {
	db         *gorm.DB
	store      integration.WorkflowStore
	tracker    integration.RequestTracker
	scheduler  *integration.EscalationScheduler
	syncer     *recordingSynchronizer
	dispatcher integration.NotificationDispatcher
	clock      *testClock
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	db := setupTestDB(t)
	logger := quietLogger()
	clock := newTestClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	store := integration.NewWorkflowStore(db)
	syncer := &recordingSynchronizer{}
	dispatcher := integration.NewNotificationDispatcher(db, integration.NewRoleDirectory(db), logger)
	t.Cleanup(dispatcher.Close)
	tracker := integration.NewRequestTracker(db, store, syncer, dispatcher,
		integration.WithClock(clock.Now),
		integration.WithLogger(logger),
	)
	return &engine{
		db:         db,
		store:      store,
		tracker:    tracker,
		scheduler:  integration.NewEscalationScheduler(db, store, tracker, logger),
		syncer:     syncer,
		dispatcher: dispatcher,
		clock:      clock,
	}
}

func (e *engine) importWorkflow(t *testing.T, def *workflow.Definition) *workflow.Definition {
	t.Helper()
	require.NoError(t, e.store.Import(def))
	return def
}

func (e *engine) assignRole(t *testing.T, userID, role string) {
	t.Helper()
	require.NoError(t, repository.NewUserRoleRepository(e.db).Assign(userID, role))
}

func (e *engine) submit(t *testing.T, def *workflow.Definition, entityID string) *model.ApprovalRequestModel {
	t.Helper()
	req, err := e.tracker.Submit(context.Background(), integration.SubmitInput{
		EntityType:   def.EntityType,
		EntityID:     entityID,
		EntityNumber: "NO-" + entityID,
		WorkflowID:   def.ID,
		SubmittedBy:  "submitter",
	})
	require.NoError(t, err)
	return req
}

func (e *engine) actions(t *testing.T, requestID string) []*model.ApprovalActionModel {
	t.Helper()
	actions, err := e.tracker.History(context.Background(), requestID)
	require.NoError(t, err)
	return actions
}

func (e *engine) notifications(t *testing.T, requestID string) []*model.NotificationModel {
	t.Helper()
	list, err := repository.NewNotificationRepository(e.db).FindByRequestID(requestID)
	require.NoError(t, err)
	return list
}

// buyerThenU1 两步流程: 第一步角色 buyer, 第二步用户 U1
func buyerThenU1(id string) *workflow.Definition {
	return &workflow.Definition{
		ID:         id,
		EntityType: "requisition",
		Name:       "Requisition approval",
		IsActive:   true,
		Steps: []workflow.Step{
			{Order: 1, Name: "Buyer review", Approvers: []workflow.Approver{workflow.RoleApprover("buyer")}},
			{Order: 2, Name: "Manager sign-off", Approvers: []workflow.Approver{workflow.UserApprover("U1")}},
		},
	}
}

// singleStep 单步流程
func singleStep(id string, timeout *int, escalation workflow.EscalationAction, approvers ...workflow.Approver) *workflow.Definition {
	return &workflow.Definition{
		ID:         id,
		EntityType: "purchase_order",
		Name:       "PO approval",
		IsActive:   true,
		Steps: []workflow.Step{
			{Order: 1, Name: "Finance", TimeoutHours: timeout, Escalation: escalation, Approvers: approvers},
		},
	}
}

func kinds(actions []*model.ApprovalActionModel) []workflow.ActionType {
	out := make([]workflow.ActionType, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Action)
	}
	return out
}
