package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 审批请求提交数
	requestsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_requests_submitted_total",
			Help: "Total number of approval requests submitted",
		},
	)

	// 审批请求结束数
	requestsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_requests_completed_total",
			Help: "Total number of approval requests that reached a terminal status",
		},
		[]string{"status"},
	)

	// 审批动作数
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_actions_total",
			Help: "Total number of approval actions recorded",
		},
		[]string{"action"}, // submit, approve, reject, send_back, comment, escalate
	)

	// 超时升级数
	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalations_total",
			Help: "Total number of escalations applied by the sweep",
		},
		[]string{"escalation_action"},
	)

	// 单次扫描耗时
	escalationSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "escalation_sweep_duration_seconds",
			Help:    "Duration of one escalation sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	documentSyncFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_sync_failures_total",
			Help: "Total number of failed document status synchronizations",
		},
		[]string{"entity_type"},
	)

	notificationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Total number of failed notification dispatches",
		},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 审批请求状态分布
	requestsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "approval_requests_by_status",
			Help: "Number of approval requests by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(requestsSubmittedTotal)
	prometheus.MustRegister(requestsCompletedTotal)
	prometheus.MustRegister(actionsTotal)
	prometheus.MustRegister(escalationsTotal)
	prometheus.MustRegister(escalationSweepDuration)
	prometheus.MustRegister(documentSyncFailuresTotal)
	prometheus.MustRegister(notificationFailuresTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(requestsByStatus)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordSubmitted 记录审批请求提交
func RecordSubmitted() {
	requestsSubmittedTotal.Inc()
}

// RecordCompleted 记录审批请求结束
func RecordCompleted(status string) {
	requestsCompletedTotal.WithLabelValues(status).Inc()
}

// RecordAction 记录审批动作
func RecordAction(action string) {
	actionsTotal.WithLabelValues(action).Inc()
}

// RecordEscalation 记录超时升级
func RecordEscalation(escalationAction string) {
	escalationsTotal.WithLabelValues(escalationAction).Inc()
}

// ObserveSweepDuration 记录扫描耗时
func ObserveSweepDuration(seconds float64) {
	escalationSweepDuration.Observe(seconds)
}

// RecordSyncFailure 记录单据同步失败
func RecordSyncFailure(entityType string) {
	documentSyncFailuresTotal.WithLabelValues(entityType).Inc()
}

// RecordNotificationFailure 记录通知失败
func RecordNotificationFailure() {
	notificationFailuresTotal.Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateRequestsByStatus 更新审批请求状态分布指标
func UpdateRequestsByStatus(status string, count float64) {
	requestsByStatus.WithLabelValues(status).Set(count)
}
