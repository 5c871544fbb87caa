package repository

import (
	"github.com/mautops/approval-engine/internal/model"
	"gorm.io/gorm"
)

// WorkflowRepository 流程定义仓储接口
type WorkflowRepository interface {
	Save(wf *model.WorkflowModel) error
	FindByID(id string) (*model.WorkflowModel, error)
	FindActiveByEntityType(entityType string) (*model.WorkflowModel, error)
	FindAll() ([]*model.WorkflowModel, error)
	Delete(id string) error
	DeactivateOthers(entityType string, keepID string) error
	CountRequests(id string) (int64, error)
}

// workflowRepository 流程定义仓储实现
type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository 创建流程定义仓储
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

// withSteps 按顺序预加载步骤和审批人
func withSteps(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Preload("Steps.Approvers", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		})
}

// Save 保存流程定义及其步骤和审批人
func (r *workflowRepository) Save(wf *model.WorkflowModel) error {
	return r.db.Create(wf).Error
}

// FindByID 根据 ID 查找流程定义
func (r *workflowRepository) FindByID(id string) (*model.WorkflowModel, error) {
	var wf model.WorkflowModel
	if err := withSteps(r.db).Where("id = ?", id).First(&wf).Error; err != nil {
		return nil, err
	}
	return &wf, nil
}

// FindActiveByEntityType 查找单据类型当前启用的流程定义
func (r *workflowRepository) FindActiveByEntityType(entityType string) (*model.WorkflowModel, error) {
	var wf model.WorkflowModel
	err := withSteps(r.db).
		Where("entity_type = ? AND is_active = ?", entityType, true).
		Order("updated_at DESC").
		First(&wf).Error
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// FindAll 查找所有流程定义
func (r *workflowRepository) FindAll() ([]*model.WorkflowModel, error) {
	var wfs []*model.WorkflowModel
	err := withSteps(r.db).Order("entity_type ASC, created_at DESC").Find(&wfs).Error
	return wfs, err
}

// Delete 删除流程定义及其步骤和审批人
func (r *workflowRepository) Delete(id string) error {
	stepIDs := r.db.Model(&model.WorkflowStepModel{}).Select("id").Where("workflow_id = ?", id)
	if err := r.db.Where("step_id IN (?)", stepIDs).Delete(&model.StepApproverModel{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("workflow_id = ?", id).Delete(&model.WorkflowStepModel{}).Error; err != nil {
		return err
	}
	return r.db.Where("id = ?", id).Delete(&model.WorkflowModel{}).Error
}

// DeactivateOthers 停用同一单据类型的其它流程定义
func (r *workflowRepository) DeactivateOthers(entityType string, keepID string) error {
	return r.db.Model(&model.WorkflowModel{}).
		Where("entity_type = ? AND id <> ?", entityType, keepID).
		Update("is_active", false).Error
}

// CountRequests 统计引用该流程定义的审批请求数量
func (r *workflowRepository) CountRequests(id string) (int64, error) {
	var count int64
	err := r.db.Model(&model.ApprovalRequestModel{}).Where("workflow_id = ?", id).Count(&count).Error
	return count, err
}
