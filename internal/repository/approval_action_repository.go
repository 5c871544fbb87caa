package repository

import (
	"github.com/mautops/approval-engine/internal/model"
	"gorm.io/gorm"
)

// ApprovalActionRepository 审批动作仓储接口, 只提供追加和查询
type ApprovalActionRepository interface {
	Save(action *model.ApprovalActionModel) error
	FindByRequestID(requestID string) ([]*model.ApprovalActionModel, error)
}

// approvalActionRepository 审批动作仓储实现
type approvalActionRepository struct {
	db *gorm.DB
}

// NewApprovalActionRepository 创建审批动作仓储
func NewApprovalActionRepository(db *gorm.DB) ApprovalActionRepository {
	return &approvalActionRepository{db: db}
}

// Save 追加审批动作
func (r *approvalActionRepository) Save(action *model.ApprovalActionModel) error {
	return r.db.Create(action).Error
}

// FindByRequestID 按时间顺序查找请求的所有动作
func (r *approvalActionRepository) FindByRequestID(requestID string) ([]*model.ApprovalActionModel, error) {
	var actions []*model.ApprovalActionModel
	err := r.db.Where("request_id = ?", requestID).Order("action_date ASC, id ASC").Find(&actions).Error
	return actions, err
}
