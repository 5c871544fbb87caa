package auth

// OpenFGA 对象类型和关系
const (
	ObjectApprovalRequest = "approval_request"
	ObjectWorkflow        = "workflow"

	RelationSubmitter = "submitter"
	RelationViewer    = "viewer"
	RelationOperator  = "operator"

	// WorkflowGlobalObject 运维权限挂在这个 workflow 对象上
	WorkflowGlobalObject = "global"
)

// GetPermissionModel 获取 OpenFGA 权限模型定义
// 审批人的动作权限由流程定义决定, 这里只管理查看权限
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type workflow
  relations
    define operator: [user]
    define viewer: [user] or operator

type approval_request
  relations
    define submitter: [user]
    define viewer: [user] or submitter`
}
