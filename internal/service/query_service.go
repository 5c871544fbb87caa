package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/utils"
	"github.com/mautops/approval-engine/internal/workflow"
	"gorm.io/gorm"
)

// QueryService 查询服务接口
type QueryService interface {
	ListRequests(ctx context.Context, filter *ListRequestsFilter) ([]*model.ApprovalRequestModel, int64, error)
	Inbox(ctx context.Context, id workflow.Identity) ([]*model.ApprovalRequestModel, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*model.NotificationModel, error)
	MarkNotificationRead(ctx context.Context, notificationID string, userID string) error
}

// ListRequestsFilter 审批请求列表查询过滤器
type ListRequestsFilter struct {
	Status      *workflow.Status
	EntityType  *string
	EntityID    *string
	SubmittedBy *string
	Page        int
	PageSize    int
	SortBy      string
	Order       string
}

// sortableColumns 允许排序的字段
var sortableColumns = map[string]struct{}{
	"submitted_at": {},
	"updated_at":   {},
	"completed_at": {},
	"entity_id":    {},
}

// queryService 查询服务实现
type queryService struct {
	db    *gorm.DB
	store integration.WorkflowStore
}

// NewQueryService 创建查询服务
func NewQueryService(db *gorm.DB, store integration.WorkflowStore) QueryService {
	return &queryService{
		db:    db,
		store: store,
	}
}

// ListRequests 列出审批请求
func (s *queryService) ListRequests(ctx context.Context, filter *ListRequestsFilter) ([]*model.ApprovalRequestModel, int64, error) {
	if filter == nil {
		filter = &ListRequestsFilter{}
	}
	if filter.Status != nil {
		switch *filter.Status {
		case workflow.StatusPending, workflow.StatusApproved, workflow.StatusRejected, workflow.StatusReturned:
		default:
			return nil, 0, workflow.ValidationError("unknown status %q", *filter.Status)
		}
	}

	// 应用排序（字段白名单，防止 SQL 注入）
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "submitted_at"
	}
	if _, ok := sortableColumns[sortBy]; !ok {
		return nil, 0, workflow.ValidationError("invalid sort field %q", sortBy)
	}
	order := filter.Order
	if order == "" {
		order = "desc"
	}
	if err := utils.ValidateSortOrder(order); err != nil {
		return nil, 0, workflow.ValidationError("invalid sort order: %v", err)
	}

	// 应用分页
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	reqs, total, err := repository.NewApprovalRequestRepository(s.db.WithContext(ctx)).FindByFilter(&repository.RequestFilter{
		Status:      filter.Status,
		EntityType:  filter.EntityType,
		EntityID:    filter.EntityID,
		SubmittedBy: filter.SubmittedBy,
		OrderBy:     fmt.Sprintf("%s %s", sortBy, strings.ToUpper(order)),
		Offset:      (page - 1) * pageSize,
		Limit:       pageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query approval requests: %w", err)
	}
	return reqs, total, nil
}

// Inbox 调用方当前可以处理的 pending 请求, 按提交时间升序
func (s *queryService) Inbox(ctx context.Context, id workflow.Identity) ([]*model.ApprovalRequestModel, error) {
	pending, err := repository.NewApprovalRequestRepository(s.db.WithContext(ctx)).FindPending()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending requests: %w", err)
	}

	definitions := make(map[string]*workflow.Definition)
	inbox := make([]*model.ApprovalRequestModel, 0)
	for _, req := range pending {
		def, ok := definitions[req.WorkflowID]
		if !ok {
			def, err = s.store.Get(req.WorkflowID)
			if err != nil {
				return nil, err
			}
			definitions[req.WorkflowID] = def
		}
		step, ok := def.StepByOrder(req.CurrentStepOrder)
		if !ok {
			continue
		}
		if workflow.Authorize(step, id) {
			inbox = append(inbox, req)
		}
	}
	return inbox, nil
}

// ListNotifications 用户的通知列表
func (s *queryService) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*model.NotificationModel, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := repository.NewNotificationRepository(s.db.WithContext(ctx)).FindByUserID(userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

// MarkNotificationRead 标记通知已读, 只能标记自己的通知
func (s *queryService) MarkNotificationRead(ctx context.Context, notificationID string, userID string) error {
	err := repository.NewNotificationRepository(s.db.WithContext(ctx)).MarkRead(notificationID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.NotFoundError("notification %q not found", notificationID)
	}
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
