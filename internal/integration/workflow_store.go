package integration

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/workflow"
	"gorm.io/gorm"
)

// WorkflowStore 流程定义存储, 运行期只读
type WorkflowStore interface {
	Get(id string) (*workflow.Definition, error)
	GetActiveForEntity(entityType string) (*workflow.Definition, error)
	List() ([]*workflow.Definition, error)
	Import(def *workflow.Definition) error
}

// dbWorkflowStore 基于数据库的流程定义存储
type dbWorkflowStore struct {
	db *gorm.DB
}

// NewWorkflowStore 创建流程定义存储
func NewWorkflowStore(db *gorm.DB) WorkflowStore {
	return &dbWorkflowStore{db: db}
}

// Get 获取流程定义
func (s *dbWorkflowStore) Get(id string) (*workflow.Definition, error) {
	wf, err := repository.NewWorkflowRepository(s.db).FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NotFoundError("workflow %q not found", id)
		}
		return nil, fmt.Errorf("failed to load workflow %q: %w", id, err)
	}
	return toDefinition(wf), nil
}

// GetActiveForEntity 获取单据类型当前启用的流程定义
func (s *dbWorkflowStore) GetActiveForEntity(entityType string) (*workflow.Definition, error) {
	wf, err := repository.NewWorkflowRepository(s.db).FindActiveByEntityType(entityType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workflow.NotFoundError("no active workflow for entity type %q", entityType)
		}
		return nil, fmt.Errorf("failed to load workflow for %q: %w", entityType, err)
	}
	return toDefinition(wf), nil
}

// List 列出所有流程定义
func (s *dbWorkflowStore) List() ([]*workflow.Definition, error) {
	wfs, err := repository.NewWorkflowRepository(s.db).FindAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defs := make([]*workflow.Definition, 0, len(wfs))
	for _, wf := range wfs {
		defs = append(defs, toDefinition(wf))
	}
	return defs, nil
}

// Import 导入流程定义
// 已被审批请求引用的定义不可覆盖, 启用的定义会停用同单据类型的其它定义
func (s *dbWorkflowStore) Import(def *workflow.Definition) error {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if err := def.Validate(); err != nil {
		return workflow.ValidationError("%v", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		repo := repository.NewWorkflowRepository(tx)

		// 1. 检查是否已存在
		existing, err := repo.FindByID(def.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load workflow %q: %w", def.ID, err)
		}

		// 2. 已被引用的定义不可修改
		if existing != nil {
			count, err := repo.CountRequests(def.ID)
			if err != nil {
				return fmt.Errorf("failed to count requests of workflow %q: %w", def.ID, err)
			}
			if count > 0 {
				return workflow.InvalidTransitionError("workflow %q is referenced by %d approval requests and cannot be replaced", def.ID, count)
			}
			if err := repo.Delete(def.ID); err != nil {
				return fmt.Errorf("failed to replace workflow %q: %w", def.ID, err)
			}
		}

		// 3. 保存
		wf := toModel(def, time.Now())
		if err := repo.Save(wf); err != nil {
			return fmt.Errorf("failed to save workflow %q: %w", def.ID, err)
		}

		// 4. 每种单据只保留一个启用的定义
		if def.IsActive {
			if err := repo.DeactivateOthers(def.EntityType, def.ID); err != nil {
				return fmt.Errorf("failed to deactivate other workflows: %w", err)
			}
		}

		// 回填生成的步骤 ID
		for i := range def.Steps {
			def.Steps[i].ID = wf.Steps[i].ID
		}
		return nil
	})
}

// toDefinition 数据模型转换为领域定义
func toDefinition(wf *model.WorkflowModel) *workflow.Definition {
	def := &workflow.Definition{
		ID:         wf.ID,
		EntityType: wf.EntityType,
		Name:       wf.Name,
		IsActive:   wf.IsActive,
		Steps:      make([]workflow.Step, 0, len(wf.Steps)),
	}
	for _, sm := range wf.Steps {
		escalation, err := workflow.ParseEscalationAction(sm.EscalationAction)
		if err != nil {
			// 存量数据中的未知策略按默认 notify 处理
			escalation = workflow.EscalationNotify
		}
		step := workflow.Step{
			ID:           sm.ID,
			Order:        sm.StepOrder,
			Name:         sm.StepName,
			TimeoutHours: sm.TimeoutHours,
			Escalation:   escalation,
			Approvers:    make([]workflow.Approver, 0, len(sm.Approvers)),
		}
		for _, am := range sm.Approvers {
			step.Approvers = append(step.Approvers, workflow.Approver{
				Type:  workflow.ParseApproverType(am.ApproverType),
				Value: am.ApproverValue,
			})
		}
		def.Steps = append(def.Steps, step)
	}
	return def
}

// toModel 领域定义转换为数据模型
func toModel(def *workflow.Definition, now time.Time) *model.WorkflowModel {
	name := def.Name
	if name == "" {
		name = def.EntityType
	}
	wf := &model.WorkflowModel{
		ID:         def.ID,
		EntityType: def.EntityType,
		Name:       name,
		IsActive:   def.IsActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, step := range def.Steps {
		stepID := step.ID
		if stepID == "" {
			stepID = uuid.New().String()
		}
		escalation, _ := workflow.ParseEscalationAction(string(step.Escalation))
		sm := model.WorkflowStepModel{
			ID:               stepID,
			WorkflowID:       def.ID,
			StepOrder:        step.Order,
			StepName:         step.Name,
			TimeoutHours:     step.TimeoutHours,
			EscalationAction: string(escalation),
		}
		if sm.StepName == "" {
			sm.StepName = fmt.Sprintf("Step %d", step.Order)
		}
		for i, a := range step.Approvers {
			sm.Approvers = append(sm.Approvers, model.StepApproverModel{
				ID:            uuid.New().String(),
				StepID:        stepID,
				Position:      i,
				ApproverType:  a.Type.String(),
				ApproverValue: a.Value,
			})
		}
		wf.Steps = append(wf.Steps, sm)
	}
	return wf
}
