package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// WorkflowService 流程定义服务接口
type WorkflowService interface {
	Import(ctx context.Context, operator string, docs []WorkflowDocument) ([]*workflow.Definition, error)
	ImportYAML(ctx context.Context, operator string, data []byte) ([]*workflow.Definition, error)
	Get(id string) (*workflow.Definition, error)
	List() ([]*workflow.Definition, error)
}

// WorkflowFile 流程定义导入文件
type WorkflowFile struct {
	Workflows []WorkflowDocument `yaml:"workflows" json:"workflows" validate:"required,min=1,dive"`
}

// WorkflowDocument 流程定义
type WorkflowDocument struct {
	ID         string         `yaml:"id" json:"id" validate:"omitempty,max=64"`
	EntityType string         `yaml:"entity_type" json:"entity_type" validate:"required,max=64"`
	Name       string         `yaml:"name" json:"name" validate:"max=255"`
	Active     *bool          `yaml:"active" json:"active"` // 默认启用
	Steps      []StepDocument `yaml:"steps" json:"steps" validate:"required,min=1,dive"`
}

// StepDocument 流程步骤
type StepDocument struct {
	Order        int                `yaml:"order" json:"order" validate:"required,min=1"`
	Name         string             `yaml:"name" json:"name" validate:"max=255"`
	TimeoutHours *int               `yaml:"timeout_hours" json:"timeout_hours" validate:"omitempty,min=1"`
	Escalation   string             `yaml:"escalation" json:"escalation" validate:"omitempty,oneof=notify auto_approve auto_reject"`
	Approvers    []ApproverDocument `yaml:"approvers" json:"approvers" validate:"dive"`
}

// ApproverDocument 审批人
type ApproverDocument struct {
	Type  string `yaml:"type" json:"type" validate:"required,oneof=user role"`
	Value string `yaml:"value" json:"value" validate:"required,max=64"`
}

// ToDefinition 转换为流程定义
func (d *WorkflowDocument) ToDefinition() (*workflow.Definition, error) {
	def := &workflow.Definition{
		ID:         d.ID,
		EntityType: d.EntityType,
		Name:       d.Name,
		IsActive:   d.Active == nil || *d.Active,
		Steps:      make([]workflow.Step, 0, len(d.Steps)),
	}
	for _, sd := range d.Steps {
		escalation, err := workflow.ParseEscalationAction(sd.Escalation)
		if err != nil {
			return nil, workflow.ValidationError("step %d: %v", sd.Order, err)
		}
		step := workflow.Step{
			Order:        sd.Order,
			Name:         sd.Name,
			TimeoutHours: sd.TimeoutHours,
			Escalation:   escalation,
			Approvers:    make([]workflow.Approver, 0, len(sd.Approvers)),
		}
		for _, ad := range sd.Approvers {
			step.Approvers = append(step.Approvers, workflow.Approver{
				Type:  workflow.ParseApproverType(ad.Type),
				Value: ad.Value,
			})
		}
		def.Steps = append(def.Steps, step)
	}
	return def, nil
}

// ParseWorkflowFile 解析 YAML 格式的流程定义文件
func ParseWorkflowFile(data []byte) (*WorkflowFile, error) {
	var file WorkflowFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, workflow.ValidationError("invalid workflow file: %v", err)
	}
	return &file, nil
}

// workflowService 流程定义服务实现
type workflowService struct {
	store       integration.WorkflowStore
	auditLogSvc AuditLogService
	validate    *validator.Validate
	logger      *logrus.Logger
}

// NewWorkflowService 创建流程定义服务
func NewWorkflowService(store integration.WorkflowStore, auditLogSvc AuditLogService, logger *logrus.Logger) WorkflowService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &workflowService{
		store:       store,
		auditLogSvc: auditLogSvc,
		validate:    validator.New(),
		logger:      logger,
	}
}

// Import 导入流程定义, 任一定义校验失败时不导入任何定义
func (s *workflowService) Import(ctx context.Context, operator string, docs []WorkflowDocument) ([]*workflow.Definition, error) {
	// 1. 校验
	if err := s.validate.Struct(&WorkflowFile{Workflows: docs}); err != nil {
		return nil, workflow.ValidationError("%s", describeValidation(err))
	}

	defs := make([]*workflow.Definition, 0, len(docs))
	for i := range docs {
		def, err := docs[i].ToDefinition()
		if err != nil {
			return nil, err
		}
		if err := def.Validate(); err != nil {
			return nil, workflow.ValidationError("workflow %d (%s): %v", i+1, def.EntityType, err)
		}
		for _, step := range def.Steps {
			if len(step.Approvers) == 0 {
				s.logger.WithFields(logrus.Fields{
					"entity_type": def.EntityType,
					"step_order":  step.Order,
				}).Warn("Workflow step has no approvers, only escalation can complete it")
			}
		}
		defs = append(defs, def)
	}

	// 2. 导入
	for _, def := range defs {
		if err := s.store.Import(def); err != nil {
			return nil, err
		}

		s.logger.WithFields(logrus.Fields{
			"workflow_id": def.ID,
			"entity_type": def.EntityType,
			"steps":       len(def.Steps),
			"active":      def.IsActive,
		}).Info("Workflow imported")

		// 3. 记录审计日志
		if s.auditLogSvc != nil && operator != "" {
			details := map[string]interface{}{
				"entity_type": def.EntityType,
				"name":        def.Name,
				"steps":       len(def.Steps),
				"active":      def.IsActive,
			}
			if err := s.auditLogSvc.RecordAction(ctx, operator, AuditActionImport, AuditResourceWorkflow, def.ID, details); err != nil {
				s.logger.WithError(err).WithField("workflow_id", def.ID).Warn("Failed to record audit log")
			}
		}
	}

	return defs, nil
}

// ImportYAML 导入 YAML 格式的流程定义文件
func (s *workflowService) ImportYAML(ctx context.Context, operator string, data []byte) ([]*workflow.Definition, error) {
	file, err := ParseWorkflowFile(data)
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, operator, file.Workflows)
}

// Get 获取流程定义
func (s *workflowService) Get(id string) (*workflow.Definition, error) {
	return s.store.Get(id)
}

// List 列出流程定义
func (s *workflowService) List() ([]*workflow.Definition, error) {
	return s.store.List()
}

// describeValidation 把 validator 的错误转换为可读信息
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
