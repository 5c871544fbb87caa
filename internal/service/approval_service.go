package service

import (
	"context"

	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/sirupsen/logrus"
)

// ApprovalService 审批请求服务接口
type ApprovalService interface {
	Submit(ctx context.Context, submitter workflow.Identity, req *SubmitRequest) (*model.ApprovalRequestModel, error)
	Act(ctx context.Context, requestID string, actor workflow.Identity, req *ActRequest) (*model.ApprovalRequestModel, error)
	Get(ctx context.Context, requestID string, viewer workflow.Identity) (*ApprovalView, error)
	GetActive(ctx context.Context, entityType string, entityID string) (*model.ApprovalRequestModel, error)
	History(ctx context.Context, requestID string) ([]*model.ApprovalActionModel, error)
	CanAct(ctx context.Context, requestID string, actor workflow.Identity) (bool, error)
}

// SubmitRequest 提交审批请求
type SubmitRequest struct {
	EntityType   string `json:"entity_type" binding:"required"` // 单据类型
	EntityID     string `json:"entity_id" binding:"required"`   // 单据 ID
	EntityNumber string `json:"entity_number"`                  // 单据编号, 用于通知展示
	WorkflowID   string `json:"workflow_id"`                    // 指定流程定义, 为空时使用启用的定义
}

// ActRequest 审批动作请求
type ActRequest struct {
	Action  string  `json:"action" binding:"required"` // approve/reject/send_back/comment
	Comment *string `json:"comment"`                   // reject/send_back/comment 必填
}

// ApprovalView 审批请求详情
type ApprovalView struct {
	Request          *model.ApprovalRequestModel `json:"request"`
	CurrentApprovers []workflow.Approver         `json:"current_approvers"`
	CanAct           bool                        `json:"can_act"`
}

// RequestAccessGranter 记录审批请求的查看关系
type RequestAccessGranter interface {
	GrantRequestAccess(ctx context.Context, requestID string, submitter string) error
}

type approvalService struct {
	tracker integration.RequestTracker
	access  RequestAccessGranter
	logger  *logrus.Logger
}

// NewApprovalService 创建审批请求服务
// access 为空时不写入 OpenFGA 关系
func NewApprovalService(tracker integration.RequestTracker, access RequestAccessGranter, logger *logrus.Logger) ApprovalService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &approvalService{
		tracker: tracker,
		access:  access,
		logger:  logger,
	}
}

// Submit 提交审批
func (s *approvalService) Submit(ctx context.Context, submitter workflow.Identity, req *SubmitRequest) (*model.ApprovalRequestModel, error) {
	if submitter.UserID == "" {
		return nil, workflow.ValidationError("submitter is required")
	}

	created, err := s.tracker.Submit(ctx, integration.SubmitInput{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		EntityNumber: req.EntityNumber,
		WorkflowID:   req.WorkflowID,
		SubmittedBy:  submitter.UserID,
	})
	if err != nil {
		return nil, err
	}

	// 权限关系写入失败不影响提交
	if s.access != nil {
		if err := s.access.GrantRequestAccess(ctx, created.ID, submitter.UserID); err != nil {
			s.logger.WithError(err).WithField("request_id", created.ID).Warn("Failed to grant submitter access")
		}
	}

	return created, nil
}

// Act 执行审批动作
func (s *approvalService) Act(ctx context.Context, requestID string, actor workflow.Identity, req *ActRequest) (*model.ApprovalRequestModel, error) {
	if actor.UserID == "" {
		return nil, workflow.ValidationError("actor is required")
	}
	return s.tracker.Act(ctx, requestID, actor, workflow.ActionType(req.Action), req.Comment)
}

// Get 获取审批请求详情, 包含当前审批人和调用方能否处理
func (s *approvalService) Get(ctx context.Context, requestID string, viewer workflow.Identity) (*ApprovalView, error) {
	req, err := s.tracker.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	approvers, err := s.tracker.CurrentApprovers(ctx, requestID)
	if err != nil {
		return nil, err
	}
	canAct, err := s.tracker.CanAct(ctx, requestID, viewer)
	if err != nil {
		return nil, err
	}
	return &ApprovalView{
		Request:          req,
		CurrentApprovers: approvers,
		CanAct:           canAct,
	}, nil
}

// GetActive 获取单据进行中的审批请求
func (s *approvalService) GetActive(ctx context.Context, entityType string, entityID string) (*model.ApprovalRequestModel, error) {
	return s.tracker.GetActiveRequest(ctx, entityType, entityID)
}

// History 审批动作记录
func (s *approvalService) History(ctx context.Context, requestID string) ([]*model.ApprovalActionModel, error) {
	if _, err := s.tracker.Get(ctx, requestID); err != nil {
		return nil, err
	}
	return s.tracker.History(ctx, requestID)
}

// CanAct 调用方能否处理当前步骤
func (s *approvalService) CanAct(ctx context.Context, requestID string, actor workflow.Identity) (bool, error) {
	return s.tracker.CanAct(ctx, requestID, actor)
}
