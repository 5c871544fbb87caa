package service

import (
	"context"
	"fmt"

	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/workflow"
	"gorm.io/gorm"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetRequestStatisticsByStatus(ctx context.Context) ([]*RequestStatisticsByStatus, error)
	GetRequestStatisticsByEntityType(ctx context.Context) ([]*RequestStatisticsByEntityType, error)
	GetApprovalStatistics(ctx context.Context) (*ApprovalStatistics, error)
}

// RequestStatisticsByStatus 按状态统计
type RequestStatisticsByStatus struct {
	Status workflow.Status `json:"status"`
	Count  int64           `json:"count"`
}

// RequestStatisticsByEntityType 按单据类型统计
type RequestStatisticsByEntityType struct {
	EntityType string `json:"entity_type"`
	Pending    int64  `json:"pending"`
	Total      int64  `json:"total"`
}

// ApprovalStatistics 审批统计
type ApprovalStatistics struct {
	Completed       int64   `json:"completed"`
	ApprovedCount   int64   `json:"approved_count"`
	RejectedCount   int64   `json:"rejected_count"`
	ReturnedCount   int64   `json:"returned_count"`
	ApprovalRate    float64 `json:"approval_rate"`
	EscalatedCount  int64   `json:"escalated_count"` // 至少升级过一次的请求
	SystemDecisions int64   `json:"system_decisions"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	db *gorm.DB
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetRequestStatisticsByStatus 按状态统计审批请求
func (s *statisticsService) GetRequestStatisticsByStatus(ctx context.Context) ([]*RequestStatisticsByStatus, error) {
	var results []struct {
		Status workflow.Status
		Count  int64
	}

	err := s.db.WithContext(ctx).Model(&model.ApprovalRequestModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get request statistics by status: %w", err)
	}

	stats := make([]*RequestStatisticsByStatus, 0, len(results))
	for _, r := range results {
		stats = append(stats, &RequestStatisticsByStatus{Status: r.Status, Count: r.Count})
	}
	return stats, nil
}

// GetRequestStatisticsByEntityType 按单据类型统计审批请求
func (s *statisticsService) GetRequestStatisticsByEntityType(ctx context.Context) ([]*RequestStatisticsByEntityType, error) {
	var results []struct {
		EntityType string
		Pending    int64
		Total      int64
	}

	err := s.db.WithContext(ctx).Model(&model.ApprovalRequestModel{}).
		Select("entity_type, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) as pending, COUNT(*) as total", workflow.StatusPending).
		Group("entity_type").
		Order("entity_type").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get request statistics by entity type: %w", err)
	}

	stats := make([]*RequestStatisticsByEntityType, 0, len(results))
	for _, r := range results {
		stats = append(stats, &RequestStatisticsByEntityType{
			EntityType: r.EntityType,
			Pending:    r.Pending,
			Total:      r.Total,
		})
	}
	return stats, nil
}

// GetApprovalStatistics 获取审批结果统计
func (s *statisticsService) GetApprovalStatistics(ctx context.Context) (*ApprovalStatistics, error) {
	db := s.db.WithContext(ctx)
	stats := &ApprovalStatistics{}

	counts := []struct {
		status workflow.Status
		dest   *int64
	}{
		{workflow.StatusApproved, &stats.ApprovedCount},
		{workflow.StatusRejected, &stats.RejectedCount},
		{workflow.StatusReturned, &stats.ReturnedCount},
	}
	for _, c := range counts {
		if err := db.Model(&model.ApprovalRequestModel{}).Where("status = ?", c.status).Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s requests: %w", c.status, err)
		}
	}
	stats.Completed = stats.ApprovedCount + stats.RejectedCount + stats.ReturnedCount
	if stats.Completed > 0 {
		stats.ApprovalRate = float64(stats.ApprovedCount) / float64(stats.Completed) * 100
	}

	if err := db.Model(&model.ApprovalRequestModel{}).Where("escalation_count > 0").Count(&stats.EscalatedCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count escalated requests: %w", err)
	}

	// 系统动作没有 user_id
	if err := db.Model(&model.ApprovalActionModel{}).
		Where("user_id IS NULL AND action IN ?", []workflow.ActionType{workflow.ActionApprove, workflow.ActionReject}).
		Count(&stats.SystemDecisions).Error; err != nil {
		return nil, fmt.Errorf("failed to count system decisions: %w", err)
	}

	return stats, nil
}
