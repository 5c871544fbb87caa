package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/approval-engine/internal/metrics"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SweepResult 一次超时扫描的结果
type SweepResult struct {
	// ProcessedCount 应用了升级策略的请求数
	ProcessedCount    int       `json:"processed_count"`
	TouchedRequestIDs []string  `json:"touched_request_ids"`
	Examined          int       `json:"examined"`
	Skipped           int       `json:"skipped"` // 已被并发处理
	Failed            int       `json:"failed"`
	EvaluatedAt       time.Time `json:"evaluated_at"`
}

// EscalationScheduler 超时升级扫描
// 本身不定时运行, 由外部 cron 或运维接口触发
type EscalationScheduler struct {
	db      *gorm.DB
	store   WorkflowStore
	tracker RequestTracker
	logger  *logrus.Logger
}

// NewEscalationScheduler 创建超时升级扫描器
func NewEscalationScheduler(db *gorm.DB, store WorkflowStore, tracker RequestTracker, logger *logrus.Logger) *EscalationScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EscalationScheduler{
		db:      db,
		store:   store,
		tracker: tracker,
		logger:  logger,
	}
}

// RunEscalationSweep 扫描所有 pending 请求, 对超时的请求执行当前步骤的升级策略
// 结果只依赖数据库当前状态, 可重复执行
func (s *EscalationScheduler) RunEscalationSweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveSweepDuration(time.Since(start).Seconds())
	}()

	// 1. 加载所有 pending 请求
	pending, err := repository.NewApprovalRequestRepository(s.db.WithContext(ctx)).FindPending()
	if err != nil {
		return nil, fmt.Errorf("failed to load pending requests: %w", err)
	}

	result := &SweepResult{
		TouchedRequestIDs: []string{},
		Examined:          len(pending),
		EvaluatedAt:       now,
	}
	definitions := make(map[string]*workflow.Definition)

	for _, req := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// 2. 当前步骤没有 SLA 或未超时则跳过
		step, err := s.stepOf(req, definitions)
		if err != nil {
			result.Failed++
			s.logger.WithError(err).WithField("request_id", req.ID).Error("Failed to resolve current step")
			continue
		}
		deadline, ok := EscalationDeadline(req, step)
		if !ok || !now.After(deadline) {
			continue
		}

		// 3. 执行升级策略, 与人工操作竞争失败时跳过
		applied, err := s.tracker.Escalate(ctx, req.ID, req.CurrentStepOrder, now)
		if err != nil {
			if errors.Is(err, workflow.ErrInvalidTransition) {
				result.Skipped++
				s.logger.WithField("request_id", req.ID).Debug("Request changed concurrently, escalation skipped")
				continue
			}
			result.Failed++
			s.logger.WithError(err).WithField("request_id", req.ID).Error("Failed to escalate request")
			continue
		}

		result.ProcessedCount++
		result.TouchedRequestIDs = append(result.TouchedRequestIDs, req.ID)
		s.logger.WithFields(logrus.Fields{
			"request_id":        req.ID,
			"entity_type":       req.EntityType,
			"entity_id":         req.EntityID,
			"step_order":        req.CurrentStepOrder,
			"escalation_action": applied,
			"deadline":          deadline,
		}).Info("Approval request escalated")
	}

	s.logger.WithFields(logrus.Fields{
		"examined":  result.Examined,
		"processed": result.ProcessedCount,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Escalation sweep finished")

	return result, nil
}

// stepOf 查找请求的当前步骤, 同一次扫描内缓存流程定义
func (s *EscalationScheduler) stepOf(req *model.ApprovalRequestModel, cache map[string]*workflow.Definition) (*workflow.Step, error) {
	def, ok := cache[req.WorkflowID]
	if !ok {
		var err error
		def, err = s.store.Get(req.WorkflowID)
		if err != nil {
			return nil, err
		}
		cache[req.WorkflowID] = def
	}
	step, ok := def.StepByOrder(req.CurrentStepOrder)
	if !ok {
		return nil, fmt.Errorf("workflow %q has no step %d", def.ID, req.CurrentStepOrder)
	}
	return step, nil
}
