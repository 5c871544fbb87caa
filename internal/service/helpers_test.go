package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mautops/approval-engine/internal/config"
	"github.com/mautops/approval-engine/internal/database"
	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

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

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// recordingAccess 记录写入的提交人关系
type recordingAccess struct {
	mu     sync.Mutex
	grants []string
	err    error
}

func (r *recordingAccess) GrantRequestAccess(_ context.Context, requestID string, submitter string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = append(r.grants, submitter+"@"+requestID)
	return r.err
}

// fixture 服务层测试环境
type fixture struct {
	db         *gorm.DB
	store      integration.WorkflowStore
	tracker    integration.RequestTracker
	scheduler  *integration.EscalationScheduler
	audit      service.AuditLogService
	workflows  service.WorkflowService
	approvals  service.ApprovalService
	queries    service.QueryService
	statistics service.StatisticsService
	access     *recordingAccess
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	logger := quietLogger()

	store := integration.NewWorkflowStore(db)
	dispatcher := integration.NewNotificationDispatcher(db, integration.NewRoleDirectory(db), logger)
	t.Cleanup(dispatcher.Close)
	tracker := integration.NewRequestTracker(db, store, nil, dispatcher, integration.WithLogger(logger))
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	access := &recordingAccess{}

	return &fixture{
		db:         db,
		store:      store,
		tracker:    tracker,
		scheduler:  integration.NewEscalationScheduler(db, store, tracker, logger),
		audit:      audit,
		workflows:  service.NewWorkflowService(store, audit, logger),
		approvals:  service.NewApprovalService(tracker, access, logger),
		queries:    service.NewQueryService(db, store),
		statistics: service.NewStatisticsService(db),
		access:     access,
	}
}

// requisitionYAML 两步流程: buyer 角色, 然后用户 U1
const requisitionYAML = `
workflows:
  - id: wf-req
    entity_type: requisition
    name: Requisition approval
    steps:
      - order: 1
        name: Buyer review
        timeout_hours: 24
        escalation: notify
        approvers:
          - type: role
            value: buyer
      - order: 2
        name: Manager sign-off
        approvers:
          - type: user
            value: U1
`

func (f *fixture) importRequisition(t *testing.T) {
	t.Helper()
	_, err := f.workflows.ImportYAML(context.Background(), "admin", []byte(requisitionYAML))
	require.NoError(t, err)
}
