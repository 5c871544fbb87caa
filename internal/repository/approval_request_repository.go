package repository

import (
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/workflow"
	"gorm.io/gorm"
)

// ApprovalRequestRepository 审批请求仓储接口
type ApprovalRequestRepository interface {
	Create(req *model.ApprovalRequestModel) error
	FindByID(id string) (*model.ApprovalRequestModel, error)
	FindPendingByEntity(entityType string, entityID string) (*model.ApprovalRequestModel, error)
	FindPending() ([]*model.ApprovalRequestModel, error)
	FindByFilter(filter *RequestFilter) ([]*model.ApprovalRequestModel, int64, error)
	CompareAndSwap(id string, expectedStepOrder int, updates map[string]interface{}) (bool, error)
	CountByStatus() (map[workflow.Status]int64, error)
}

// RequestFilter 审批请求查询过滤器
type RequestFilter struct {
	Status      *workflow.Status
	EntityType  *string
	EntityID    *string
	SubmittedBy *string
	OrderBy     string // 已校验的 "column ASC|DESC", 为空时按提交时间倒序
	Offset      int
	Limit       int
}

// approvalRequestRepository 审批请求仓储实现
type approvalRequestRepository struct {
	db *gorm.DB
}

// NewApprovalRequestRepository 创建审批请求仓储
func NewApprovalRequestRepository(db *gorm.DB) ApprovalRequestRepository {
	return &approvalRequestRepository{db: db}
}

// Create 创建审批请求
func (r *approvalRequestRepository) Create(req *model.ApprovalRequestModel) error {
	return r.db.Create(req).Error
}

// FindByID 根据 ID 查找审批请求
func (r *approvalRequestRepository) FindByID(id string) (*model.ApprovalRequestModel, error) {
	var req model.ApprovalRequestModel
	if err := r.db.Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindPendingByEntity 查找单据当前进行中的审批请求
func (r *approvalRequestRepository) FindPendingByEntity(entityType string, entityID string) (*model.ApprovalRequestModel, error) {
	var req model.ApprovalRequestModel
	err := r.db.
		Where("entity_type = ? AND entity_id = ? AND status = ?", entityType, entityID, workflow.StatusPending).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// FindPending 查找所有进行中的审批请求
func (r *approvalRequestRepository) FindPending() ([]*model.ApprovalRequestModel, error) {
	var reqs []*model.ApprovalRequestModel
	err := r.db.Where("status = ?", workflow.StatusPending).Order("submitted_at ASC").Find(&reqs).Error
	return reqs, err
}

// FindByFilter 根据过滤器分页查找审批请求, 同时返回总数
func (r *approvalRequestRepository) FindByFilter(filter *RequestFilter) ([]*model.ApprovalRequestModel, int64, error) {
	if filter == nil {
		filter = &RequestFilter{}
	}
	query := r.db.Model(&model.ApprovalRequestModel{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.SubmittedBy != nil {
		query = query.Where("submitted_by = ?", *filter.SubmittedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "submitted_at DESC"
	}
	query = query.Order(orderBy).Order("id ASC")
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var reqs []*model.ApprovalRequestModel
	err := query.Find(&reqs).Error
	return reqs, total, err
}

// CompareAndSwap 仅当请求仍为 pending 且停留在 expectedStepOrder 时更新
// 返回 false 表示状态已被并发修改
func (r *approvalRequestRepository) CompareAndSwap(id string, expectedStepOrder int, updates map[string]interface{}) (bool, error) {
	result := r.db.Model(&model.ApprovalRequestModel{}).
		Where("id = ? AND status = ? AND current_step_order = ?", id, workflow.StatusPending, expectedStepOrder).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CountByStatus 按状态统计审批请求数量
func (r *approvalRequestRepository) CountByStatus() (map[workflow.Status]int64, error) {
	var rows []struct {
		Status workflow.Status
		Count  int64
	}
	err := r.db.Model(&model.ApprovalRequestModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[workflow.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
