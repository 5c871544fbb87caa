package container

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mautops/approval-engine/internal/api"
	"github.com/mautops/approval-engine/internal/config"
	"github.com/mautops/approval-engine/internal/database"
	"github.com/mautops/approval-engine/internal/integration"
	"github.com/mautops/approval-engine/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type requisitionRow struct {
	ID         string `gorm:"primaryKey"`
	Status     string
	ApprovedAt *time.Time
}

func (requisitionRow) TableName() string {
	return "requisitions"
}

// testServer 基于 sqlite 的完整 HTTP 服务
type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.Default()
	cfg.Env = "development"
	cfg.Escalation.Enabled = false

	ctr, err := NewContainer(cfg, logger, Options{DB: db})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Close() })

	return &testServer{t: t, db: db, router: api.SetupRoutes(ctr.RouterDeps())}
}

// do 以请求头身份发起请求, 返回状态码和 data 字段
func (s *testServer) do(method, path, user, roles string, body interface{}) (int, json.RawMessage, []byte) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp.Data, w.Body.Bytes()
}

var requisitionWorkflow = map[string]interface{}{
	"workflows": []map[string]interface{}{
		{
			"id":          "wf-req",
			"entity_type": "requisition",
			"name":        "Requisition approval",
			"steps": []map[string]interface{}{
				{
					"order":         1,
					"name":          "Buyer review",
					"timeout_hours": 24,
					"escalation":    "notify",
					"approvers":     []map[string]string{{"type": "role", "value": "buyer"}},
				},
				{
					"order":     2,
					"name":      "Manager sign-off",
					"approvers": []map[string]string{{"type": "user", "value": "U1"}},
				},
			},
		},
	},
}

// TestServer_RequisitionApprovalFlow 提交、两级审批、单据同步和通知的完整流程
func TestServer_RequisitionApprovalFlow(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.db.AutoMigrate(&requisitionRow{}))
	require.NoError(t, s.db.Create(&requisitionRow{ID: "REQ-1", Status: "submitted"}).Error)
	require.NoError(t, s.db.Create(&model.UserRoleModel{UserID: "U2", Role: "buyer", CreatedAt: time.Now()}).Error)

	// 导入流程定义
	code, _, body := s.do(http.MethodPost, "/api/v1/workflows/import", "admin", "", requisitionWorkflow)
	require.Equal(t, http.StatusCreated, code, string(body))

	// 提交
	code, data, body := s.do(http.MethodPost, "/api/v1/approvals", "U0", "", map[string]string{
		"entity_type":   "requisition",
		"entity_id":     "REQ-1",
		"entity_number": "PR-0001",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var created model.ApprovalRequestModel
	require.NoError(t, json.Unmarshal(data, &created))
	assert.Equal(t, "pending", string(created.Status))
	assert.Equal(t, 1, created.CurrentStepOrder)

	// 同一单据重复提交
	code, _, _ = s.do(http.MethodPost, "/api/v1/approvals", "U0", "", map[string]string{
		"entity_type": "requisition",
		"entity_id":   "REQ-1",
	})
	assert.Equal(t, http.StatusConflict, code)

	// buyer 的待办
	code, data, _ = s.do(http.MethodGet, "/api/v1/approvals/inbox", "U2", "buyer", nil)
	require.Equal(t, http.StatusOK, code)
	var inbox []model.ApprovalRequestModel
	require.NoError(t, json.Unmarshal(data, &inbox))
	require.Len(t, inbox, 1)
	assert.Equal(t, created.ID, inbox[0].ID)

	// 非审批人被拒绝, 并告知当前审批人
	code, _, body = s.do(http.MethodPost, "/api/v1/approvals/"+created.ID+"/actions", "U9", "", map[string]string{"action": "approve"})
	require.Equal(t, http.StatusForbidden, code)
	var forbidden struct {
		Detail api.ForbiddenDetail `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(body, &forbidden))
	assert.Equal(t, []string{"role:buyer"}, forbidden.Detail.Approvers)

	// 第一步 buyer 通过
	code, data, body = s.do(http.MethodPost, "/api/v1/approvals/"+created.ID+"/actions", "U2", "buyer", map[string]string{"action": "approve"})
	require.Equal(t, http.StatusOK, code, string(body))
	var advanced model.ApprovalRequestModel
	require.NoError(t, json.Unmarshal(data, &advanced))
	assert.Equal(t, 2, advanced.CurrentStepOrder)

	// 第二步 U1 通过
	code, data, body = s.do(http.MethodPost, "/api/v1/approvals/"+created.ID+"/actions", "U1", "", map[string]string{"action": "approve"})
	require.Equal(t, http.StatusOK, code, string(body))
	var approved model.ApprovalRequestModel
	require.NoError(t, json.Unmarshal(data, &approved))
	assert.Equal(t, "approved", string(approved.Status))

	// 决定后不能再操作
	code, _, _ = s.do(http.MethodPost, "/api/v1/approvals/"+created.ID+"/actions", "U1", "", map[string]string{"action": "approve"})
	assert.Equal(t, http.StatusConflict, code)

	// 审批记录
	code, data, _ = s.do(http.MethodGet, "/api/v1/approvals/"+created.ID+"/actions", "U0", "", nil)
	require.Equal(t, http.StatusOK, code)
	var actions []model.ApprovalActionModel
	require.NoError(t, json.Unmarshal(data, &actions))
	require.Len(t, actions, 3)
	assert.Equal(t, "submit", string(actions[0].Action))

	// 单据状态已同步
	var row requisitionRow
	require.NoError(t, s.db.First(&row, "id = ?", "REQ-1").Error)
	assert.Equal(t, "approved", row.Status)
	assert.NotNil(t, row.ApprovedAt)

	// 提交人收到通过通知
	code, data, _ = s.do(http.MethodGet, "/api/v1/notifications", "U0", "", nil)
	require.Equal(t, http.StatusOK, code)
	var notifications []model.NotificationModel
	require.NoError(t, json.Unmarshal(data, &notifications))
	require.NotEmpty(t, notifications)
	assert.Equal(t, "approved", notifications[0].Type)

	// 已决定的单据没有进行中的请求
	code, _, _ = s.do(http.MethodGet, "/api/v1/approvals/active?entity_type=requisition&entity_id=REQ-1", "U0", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

// TestServer_ValidationAndAuth 请求头身份缺失、校验失败和未知路由
func TestServer_ValidationAndAuth(t *testing.T) {
	s := newTestServer(t)

	code, _, _ := s.do(http.MethodGet, "/api/v1/approvals/inbox", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = s.do(http.MethodPost, "/api/v1/approvals", "U0", "", map[string]string{"entity_type": "requisition"})
	assert.Equal(t, http.StatusBadRequest, code)

	// 没有启用的流程定义
	code, _, _ = s.do(http.MethodPost, "/api/v1/approvals", "U0", "", map[string]string{
		"entity_type": "supplier",
		"entity_id":   "SUP-1",
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = s.do(http.MethodGet, "/api/v1/approvals/missing", "U0", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = s.do(http.MethodGet, "/api/v1/nothing", "U0", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = s.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

// TestServer_EscalationSweep 运维触发扫描返回汇总
func TestServer_EscalationSweep(t *testing.T) {
	s := newTestServer(t)

	code, data, body := s.do(http.MethodPost, "/api/v1/escalations/sweep", "ops", "", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var result integration.SweepResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, 0, result.ProcessedCount)
}

// TestStatusMappings 测试配置映射转换
func TestStatusMappings(t *testing.T) {
	mappings := StatusMappings(config.DefaultStatusMappings())
	require.Contains(t, mappings, "requisition")
	assert.Equal(t, "requisitions", mappings["requisition"].Table)
	assert.Equal(t, "draft", mappings["requisition"].ReturnedStatus)
	assert.Empty(t, mappings["supplier"].ReturnedStatus)
}
