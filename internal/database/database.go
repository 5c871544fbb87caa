package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/approval-engine/internal/config"
	"github.com/mautops/approval-engine/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置, 未配置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	poolConfig := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if poolConfig.MaxIdleConns == 0 {
		poolConfig.MaxIdleConns = 10
	}
	if poolConfig.MaxOpenConns == 0 {
		poolConfig.MaxOpenConns = 100
	}
	if poolConfig.ConnMaxLifetime == 0 {
		poolConfig.ConnMaxLifetime = 3600 // 1 小时
	}
	if poolConfig.ConnMaxIdleTime == 0 {
		poolConfig.ConnMaxIdleTime = 600 // 10 分钟
	}
	return poolConfig
}

// Dialector 根据驱动类型选择 gorm 方言
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(BuildDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(cfg.Path), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// GormConfig 返回统一的 gorm 配置
// TranslateError 让唯一索引冲突以 gorm.ErrDuplicatedKey 返回
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	poolConfig := GetPoolConfig(cfg)
	if cfg.Driver == "sqlite" {
		// SQLite 只允许单写连接
		poolConfig.MaxOpenConns = 1
		poolConfig.MaxIdleConns = 1
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.WorkflowModel{},
		&model.WorkflowStepModel{},
		&model.StepApproverModel{},
		&model.ApprovalRequestModel{},
		&model.ApprovalActionModel{},
		&model.NotificationModel{},
		&model.UserRoleModel{},
		&model.AuditLogModel{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// CreateIndexes 创建 AutoMigrate 无法表达的索引
func CreateIndexes(db *gorm.DB) error {
	indexes := []struct {
		name string
		sql  string
	}{
		// 同一单据最多一条进行中的审批请求, PostgreSQL 与 SQLite 均支持部分索引
		{"uniq_approval_requests_pending_entity",
			"CREATE UNIQUE INDEX IF NOT EXISTS uniq_approval_requests_pending_entity ON approval_requests(entity_type, entity_id) WHERE status = 'pending'"},
		{"idx_approval_requests_pending_submitted",
			"CREATE INDEX IF NOT EXISTS idx_approval_requests_pending_submitted ON approval_requests(submitted_at) WHERE status = 'pending'"},
		{"idx_approval_actions_request_date",
			"CREATE INDEX IF NOT EXISTS idx_approval_actions_request_date ON approval_actions(request_id, action_date)"},
		{"idx_notifications_user_unread",
			"CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id, is_read)"},
		{"idx_audit_resource",
			"CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)"},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_details_gin ON audit_logs USING GIN (details)").Error; err != nil {
			return fmt.Errorf("failed to create idx_audit_details_gin: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx) == nil
}
