package repository

import (
	"time"

	"github.com/mautops/approval-engine/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRoleRepository 用户角色仓储接口
type UserRoleRepository interface {
	Assign(userID string, role string) error
	Revoke(userID string, role string) error
	FindUsersByRole(role string) ([]string, error)
	FindRolesByUser(userID string) ([]string, error)
}

// userRoleRepository 用户角色仓储实现
type userRoleRepository struct {
	db *gorm.DB
}

// NewUserRoleRepository 创建用户角色仓储
func NewUserRoleRepository(db *gorm.DB) UserRoleRepository {
	return &userRoleRepository{db: db}
}

// Assign 为用户分配角色, 已存在时忽略
func (r *userRoleRepository) Assign(userID string, role string) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserRoleModel{
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now(),
	}).Error
}

// Revoke 撤销用户角色
func (r *userRoleRepository) Revoke(userID string, role string) error {
	return r.db.Where("user_id = ? AND role = ?", userID, role).Delete(&model.UserRoleModel{}).Error
}

// FindUsersByRole 查找拥有角色的所有用户
func (r *userRoleRepository) FindUsersByRole(role string) ([]string, error) {
	var users []string
	err := r.db.Model(&model.UserRoleModel{}).
		Where("role = ?", role).
		Order("user_id ASC").
		Pluck("user_id", &users).Error
	return users, err
}

// FindRolesByUser 查找用户的所有角色
func (r *userRoleRepository) FindRolesByUser(userID string) ([]string, error) {
	var roles []string
	err := r.db.Model(&model.UserRoleModel{}).
		Where("user_id = ?", userID).
		Order("role ASC").
		Pluck("role", &roles).Error
	return roles, err
}
