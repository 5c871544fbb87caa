package workflow

// Authorize 判断身份能否处理该步骤: 任意一个审批人匹配即可
// 没有审批人的步骤不授权任何人
func Authorize(step *Step, id Identity) bool {
	if step == nil || id.UserID == "" && len(id.Roles) == 0 {
		return false
	}
	for _, a := range step.Approvers {
		if matches(a, id) {
			return true
		}
	}
	return false
}

func matches(a Approver, id Identity) bool {
	switch a.Type {
	case ApproverUser:
		return id.UserID != "" && a.Value == id.UserID
	case ApproverRole:
		return a.Value != "" && id.HasRole(a.Value)
	case ApproverUnknown:
		return false
	}
	return false
}

// SplitApprovers 按类型拆分为用户 ID 和角色名, 供通知展开使用
func SplitApprovers(approvers []Approver) (users []string, roles []string) {
	for _, a := range approvers {
		switch a.Type {
		case ApproverUser:
			users = append(users, a.Value)
		case ApproverRole:
			roles = append(roles, a.Value)
		}
	}
	return users, roles
}
