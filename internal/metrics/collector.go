package metrics

import (
	"context"
	"time"

	"github.com/mautops/approval-engine/internal/repository"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Collector 指标收集器, 定期刷新连接池和审批请求状态分布
type Collector struct {
	db       *gorm.DB
	repo     repository.ApprovalRequestRepository
	interval time.Duration
	logger   *logrus.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, interval time.Duration, logger *logrus.Logger) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{
		db:       db,
		repo:     repository.NewApprovalRequestRepository(db),
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	c.CollectOnce()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce()
		}
	}
}

// CollectOnce 立即收集一次
func (c *Collector) CollectOnce() {
	_ = UpdateDatabaseConnections(c.db)

	counts, err := c.repo.CountByStatus()
	if err != nil {
		c.logger.WithError(err).Warn("Failed to collect approval request status metrics")
		return
	}
	for _, status := range []workflow.Status{
		workflow.StatusPending, workflow.StatusApproved, workflow.StatusRejected, workflow.StatusReturned,
	} {
		UpdateRequestsByStatus(string(status), float64(counts[status]))
	}
}
