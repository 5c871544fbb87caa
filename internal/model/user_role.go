package model

import "time"

// UserRoleModel 用户角色关系
type UserRoleModel struct {
	UserID    string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Role      string    `gorm:"primaryKey;type:varchar(64);index" json:"role"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (UserRoleModel) TableName() string {
	return "user_roles"
}
