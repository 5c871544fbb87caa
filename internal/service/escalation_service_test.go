package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) RunEscalationSweep(_ context.Context, now time.Time) (*integration.SweepResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &integration.SweepResult{ProcessedCount: 2, TouchedRequestIDs: []string{"a", "b"}, EvaluatedAt: now}, nil
}

// TestEscalationService_Sweep 手动触发扫描并记录审计日志
func TestEscalationService_Sweep(t *testing.T) {
	f := newFixture(t)
	sweeper := &countingSweeper{}
	svc := service.NewEscalationService(sweeper, f.audit, quietLogger())

	result, err := svc.Sweep(context.Background(), "ops")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProcessedCount)

	resourceID := result.EvaluatedAt.UTC().Format(time.RFC3339)
	logs, err := f.audit.ListByResource(service.AuditResourceEscalation, resourceID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ops", logs[0].UserID)
	assert.Contains(t, string(logs[0].Details), `"processed_count":2`)

	sweeper.err = errors.New("db down")
	_, err = svc.Sweep(context.Background(), "ops")
	assert.Error(t, err)
}

// TestEscalationCron 定时触发扫描
func TestEscalationCron(t *testing.T) {
	_, err := service.NewEscalationCron(&countingSweeper{}, "every five minutes", quietLogger())
	assert.Error(t, err)

	sweeper := &countingSweeper{}
	c, err := service.NewEscalationCron(sweeper, "@every 1s", quietLogger())
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

// TestEscalationCron_FailureKeepsRunning 扫描失败后继续调度
func TestEscalationCron_FailureKeepsRunning(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	c, err := service.NewEscalationCron(sweeper, "@every 1s", quietLogger())
	require.NoError(t, err)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
}
