package database_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/approval-engine/internal/config"
	"github.com/mautops/approval-engine/internal/database"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func pendingRequest(entityID string) *model.ApprovalRequestModel {
	now := time.Now()
	return &model.ApprovalRequestModel{
		ID:               uuid.NewString(),
		EntityType:       "requisition",
		EntityID:         entityID,
		WorkflowID:       "wf-1",
		Status:           workflow.StatusPending,
		CurrentStepOrder: 1,
		SubmittedBy:      "U0",
		SubmittedAt:      now,
		UpdatedAt:        now,
	}
}

// TestMigrate_PendingUniqueness 同一单据只能有一条 pending 请求
func TestMigrate_PendingUniqueness(t *testing.T) {
	db := setupTestDB(t)

	first := pendingRequest("REQ-1")
	require.NoError(t, db.Create(first).Error)

	err := db.Create(pendingRequest("REQ-1")).Error
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	// 结束后可以重新提交
	require.NoError(t, db.Model(first).Update("status", workflow.StatusReturned).Error)
	assert.NoError(t, db.Create(pendingRequest("REQ-1")).Error)

	// 其它单据不受影响
	assert.NoError(t, db.Create(pendingRequest("REQ-2")).Error)
}

// TestMigrate_Idempotent 重复迁移不报错
func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, database.Migrate(db))
	assert.True(t, database.CheckHealth(db))
}

func TestDialector_Unsupported(t *testing.T) {
	_, err := database.Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestGetPoolConfig_Defaults(t *testing.T) {
	pool := database.GetPoolConfig(config.DatabaseConfig{MaxOpenConns: 50})
	assert.Equal(t, 50, pool.MaxOpenConns)
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Equal(t, 3600, pool.ConnMaxLifetime)
}
