package integration

import (
	"context"
	"fmt"

	"github.com/mautops/approval-engine/internal/repository"
	"gorm.io/gorm"
)

// RoleDirectory 角色成员查询, 每次调用实时查询不做缓存
type RoleDirectory interface {
	UsersInRole(ctx context.Context, role string) ([]string, error)
}

// dbRoleDirectory 基于 user_roles 表的角色目录
type dbRoleDirectory struct {
	db *gorm.DB
}

// NewRoleDirectory 创建角色目录
func NewRoleDirectory(db *gorm.DB) RoleDirectory {
	return &dbRoleDirectory{db: db}
}

// UsersInRole 查找角色下的所有用户
func (d *dbRoleDirectory) UsersInRole(ctx context.Context, role string) ([]string, error) {
	users, err := repository.NewUserRoleRepository(d.db.WithContext(ctx)).FindUsersByRole(role)
	if err != nil {
		return nil, fmt.Errorf("failed to expand role %q: %w", role, err)
	}
	return users, nil
}
