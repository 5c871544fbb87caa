package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/approval-engine/internal/integration"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper 执行一次超时升级扫描
type Sweeper interface {
	RunEscalationSweep(ctx context.Context, now time.Time) (*integration.SweepResult, error)
}

// EscalationService 超时升级服务接口
type EscalationService interface {
	// Sweep 由运维人员手动触发一次扫描并记录审计日志
	Sweep(ctx context.Context, operator string) (*integration.SweepResult, error)
}

type escalationService struct {
	sweeper     Sweeper
	auditLogSvc AuditLogService
	now         func() time.Time
	logger      *logrus.Logger
}

// NewEscalationService 创建超时升级服务
func NewEscalationService(sweeper Sweeper, auditLogSvc AuditLogService, logger *logrus.Logger) EscalationService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &escalationService{
		sweeper:     sweeper,
		auditLogSvc: auditLogSvc,
		now:         time.Now,
		logger:      logger,
	}
}

// Sweep 触发扫描
func (s *escalationService) Sweep(ctx context.Context, operator string) (*integration.SweepResult, error) {
	result, err := s.sweeper.RunEscalationSweep(ctx, s.now())
	if err != nil {
		return nil, err
	}

	if s.auditLogSvc != nil && operator != "" {
		resourceID := result.EvaluatedAt.UTC().Format(time.RFC3339)
		if err := s.auditLogSvc.RecordAction(ctx, operator, AuditActionSweep, AuditResourceEscalation, resourceID, result); err != nil {
			s.logger.WithError(err).Warn("Failed to record audit log")
		}
	}

	return result, nil
}

// EscalationCron 按 cron 表达式定时触发超时升级扫描
type EscalationCron struct {
	sweeper  Sweeper
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *logrus.Logger
}

// NewEscalationCron 创建定时扫描
// schedule 支持标准 5 段 cron 表达式和 @every 5m 形式
func NewEscalationCron(sweeper Sweeper, schedule string, logger *logrus.Logger) (*EscalationCron, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid escalation schedule %q: %w", schedule, err)
	}

	cronLog := &cronLogger{logger: logger}
	c := &EscalationCron{
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  10 * time.Minute,
		logger:   logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		)),
	}
	if _, err := c.cron.AddFunc(schedule, c.run); err != nil {
		return nil, fmt.Errorf("failed to schedule escalation sweep: %w", err)
	}
	return c, nil
}

// Start 启动定时扫描
func (c *EscalationCron) Start() {
	c.cron.Start()
	c.logger.WithField("schedule", c.schedule).Info("Escalation sweep scheduled")
}

// Stop 停止定时扫描并等待正在执行的扫描结束
func (c *EscalationCron) Stop() {
	<-c.cron.Stop().Done()
}

// run 执行一次扫描, 失败只记录日志, 下一次扫描会重新评估
func (c *EscalationCron) run() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := c.sweeper.RunEscalationSweep(ctx, time.Now())
	if err != nil {
		c.logger.WithError(err).Error("Escalation sweep failed")
		return
	}

	entry := c.logger.WithFields(logrus.Fields{
		"processed": result.ProcessedCount,
		"examined":  result.Examined,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	})
	if result.ProcessedCount > 0 || result.Failed > 0 {
		entry.Info("Escalation sweep finished")
	} else {
		entry.Debug("Escalation sweep finished")
	}
}

// cronLogger 把 cron 的日志转到 logrus
type cronLogger struct {
	logger *logrus.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
