package workflow

import (
	"encoding/json"
	"fmt"
)

// ApproverType 审批人类型, 新增类型需要在 Authorize 中显式处理
type ApproverType uint8

const (
	// ApproverUnknown 无法识别的类型, 永远不授权
	ApproverUnknown ApproverType = iota
	ApproverUser
	ApproverRole
)

// String 返回持久化使用的类型名
func (t ApproverType) String() string {
	switch t {
	case ApproverUser:
		return "user"
	case ApproverRole:
		return "role"
	}
	return "unknown"
}

// ParseApproverType 解析持久化的类型名
func ParseApproverType(s string) ApproverType {
	switch s {
	case "user":
		return ApproverUser
	case "role":
		return ApproverRole
	}
	return ApproverUnknown
}

// MarshalJSON 以类型名输出
func (t ApproverType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON 从类型名解析
func (t *ApproverType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseApproverType(s)
	return nil
}

// Approver 审批人描述: 用户 ID 或角色名
type Approver struct {
	Type  ApproverType `json:"approver_type"`
	Value string       `json:"approver_value"`
}

// UserApprover 按用户指定审批人
func UserApprover(userID string) Approver {
	return Approver{Type: ApproverUser, Value: userID}
}

// RoleApprover 按角色指定审批人
func RoleApprover(role string) Approver {
	return Approver{Type: ApproverRole, Value: role}
}

// String 返回 "user:U1" / "role:buyer" 形式
func (a Approver) String() string {
	return fmt.Sprintf("%s:%s", a.Type, a.Value)
}

// DescribeApprovers 把审批人列表转换为可展示的字符串
func DescribeApprovers(approvers []Approver) []string {
	out := make([]string, 0, len(approvers))
	for _, a := range approvers {
		out = append(out, a.String())
	}
	return out
}
