package integration

import (
	"context"
	"sync"
	"time"

	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/utils"
	"github.com/mautops/approval-engine/internal/workflow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusMapping 审批结果到单据状态字段的映射
type StatusMapping struct {
	Table            string
	IDColumn         string
	StatusColumn     string
	ApprovedStatus   string
	RejectedStatus   string
	ReturnedStatus   string
	ApprovedAtColumn string
}

// statusFor 返回审批结果对应的单据状态, 空字符串表示不同步
func (m StatusMapping) statusFor(status workflow.Status) string {
	switch status {
	case workflow.StatusApproved:
		return m.ApprovedStatus
	case workflow.StatusRejected:
		return m.RejectedStatus
	case workflow.StatusReturned:
		return m.ReturnedStatus
	}
	return ""
}

// validate 校验映射中的表名和列名
func (m StatusMapping) validate() error {
	if err := utils.ValidateIdentifiers(m.Table, m.IDColumn, m.StatusColumn); err != nil {
		return err
	}
	if m.Table == "" || m.IDColumn == "" || m.StatusColumn == "" {
		return workflow.ValidationError("table, id_column and status_column are required")
	}
	return utils.ValidateIdentifiers(m.ApprovedAtColumn)
}

// DocumentSynchronizer 把审批终态同步到原单据
type DocumentSynchronizer interface {
	Sync(ctx context.Context, req *model.ApprovalRequestModel) error
}

// MappingSynchronizer 按映射表更新单据状态, 映射可热更新
type MappingSynchronizer struct {
	db       *gorm.DB
	mu       sync.RWMutex
	mappings map[string]StatusMapping
}

// NewDocumentSynchronizer 创建单据状态同步器
func NewDocumentSynchronizer(db *gorm.DB, mappings map[string]StatusMapping) *MappingSynchronizer {
	s := &MappingSynchronizer{db: db}
	s.SetMappings(mappings)
	return s
}

// SetMappings 替换映射表
func (s *MappingSynchronizer) SetMappings(mappings map[string]StatusMapping) {
	copied := make(map[string]StatusMapping, len(mappings))
	for k, v := range mappings {
		copied[k] = v
	}
	s.mu.Lock()
	s.mappings = copied
	s.mu.Unlock()
}

// Mapping 查找单据类型的映射
func (s *MappingSynchronizer) Mapping(entityType string) (StatusMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[entityType]
	return m, ok
}

// Sync 同步单据状态
// 没有映射的单据类型或没有配置对应状态时不做任何操作
func (s *MappingSynchronizer) Sync(ctx context.Context, req *model.ApprovalRequestModel) error {
	m, ok := s.Mapping(req.EntityType)
	if !ok {
		return nil
	}
	value := m.statusFor(req.Status)
	if value == "" {
		return nil
	}
	if err := m.validate(); err != nil {
		return workflow.SyncFailure(err, "invalid status mapping for %q", req.EntityType)
	}

	updates := map[string]interface{}{m.StatusColumn: value}
	if req.Status == workflow.StatusApproved && m.ApprovedAtColumn != "" {
		approvedAt := time.Now()
		if req.CompletedAt != nil {
			approvedAt = *req.CompletedAt
		}
		updates[m.ApprovedAtColumn] = approvedAt
	}

	result := s.db.WithContext(ctx).
		Table(m.Table).
		Where(clause.Eq{Column: clause.Column{Name: m.IDColumn}, Value: req.EntityID}).
		Updates(updates)
	if result.Error != nil {
		return workflow.SyncFailure(result.Error, "failed to update %s %s", req.EntityType, req.EntityID)
	}
	if result.RowsAffected == 0 {
		return workflow.SyncFailure(nil, "%s %s not found in %s", req.EntityType, req.EntityID, m.Table)
	}
	return nil
}
