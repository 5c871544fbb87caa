package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthChecker 外部依赖健康检查
type HealthChecker interface {
	CheckHealth(ctx context.Context) bool
}

// HealthController 健康检查控制器
type HealthController struct {
	db  *gorm.DB
	fga HealthChecker
}

// NewHealthController 创建健康检查控制器, fga 为 nil 表示未配置 OpenFGA
func NewHealthController(db *gorm.DB, fga HealthChecker) *HealthController {
	return &HealthController{
		db:  db,
		fga: fga,
	}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	// 检查数据库连接
	if c.db != nil {
		if err := c.checkDatabase(ctx.Request.Context()); err != nil {
			status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	// OpenFGA 只影响查看权限, 不可用时降级而不是整体不健康
	if c.fga != nil {
		if c.fga.CheckHealth(ctx.Request.Context()) {
			checks["openfga"] = "healthy"
		} else {
			if status == "healthy" {
				status = "degraded"
			}
			checks["openfga"] = "unhealthy"
		}
	} else {
		checks["openfga"] = "not configured"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// checkDatabase 检查数据库连接
func (c *HealthController) checkDatabase(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
