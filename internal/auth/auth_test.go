package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mautops/approval-engine/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// jwksServer 提供单个 RSA 公钥的 JWKS 端点
func jwksServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *KeycloakClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// TestKeycloakTokenValidator_ValidateToken 测试 token 验证和身份提取
func TestKeycloakTokenValidator_ValidateToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := jwksServer(t, "k1", &key.PublicKey)

	// JWKS 地址由 issuer 推导, 这里直接指向测试服务
	validator := NewKeycloakTokenValidator("https://sso.example.com/realms/erp")
	validator.WithJWKSURL(srv.URL)

	claims := &KeycloakClaims{Sub: "U1"}
	claims.RealmAccess.Roles = []string{"buyer"}
	claims.Issuer = "https://sso.example.com/realms/erp"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))

	got, err := validator.ValidateToken(signToken(t, key, "k1", claims))
	require.NoError(t, err)
	assert.Equal(t, workflow.Identity{UserID: "U1", Roles: []string{"buyer"}}, got.Identity())

	// issuer 不匹配
	claims.Issuer = "https://evil.example.com"
	_, err = validator.ValidateToken(signToken(t, key, "k1", claims))
	assert.Error(t, err)

	// 已过期
	claims.Issuer = "https://sso.example.com/realms/erp"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = validator.ValidateToken(signToken(t, key, "k1", claims))
	assert.Error(t, err)

	// 未知 kid
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	_, err = validator.ValidateToken(signToken(t, key, "other", claims))
	assert.Error(t, err)
}

// TestHeaderIdentityMiddleware 测试从请求头读取身份
func TestHeaderIdentityMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(HeaderIdentityMiddleware())
	router.GET("/me", func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderUserID, "U1")
	req.Header.Set(HeaderUserRoles, "buyer, finance ,,")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var id workflow.Identity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &id))
	assert.Equal(t, "U1", id.UserID)
	assert.Equal(t, []string{"buyer", "finance"}, id.Roles)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type fakeChecker struct {
	allowed bool
	err     error
	calls   int
	object  string
}

func (f *fakeChecker) CheckPermission(_ context.Context, _ string, _ string, objectType string, objectID string) (bool, error) {
	f.calls++
	f.object = objectType + ":" + objectID
	return f.allowed, f.err
}

// TestPermissionMiddleware 测试权限中间件
func TestPermissionMiddleware(t *testing.T) {
	serve := func(checker PermissionChecker, allow func(*gin.Context) bool) int {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			SetIdentity(c, workflow.Identity{UserID: "U1"})
		})
		router.GET("/requests/:id", PermissionMiddleware(checker, ObjectApprovalRequest, RelationViewer, allow), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requests/r1", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(nil, nil))
	assert.Equal(t, http.StatusOK, serve(&fakeChecker{allowed: true}, nil))
	assert.Equal(t, http.StatusForbidden, serve(&fakeChecker{}, nil))
	assert.Equal(t, http.StatusInternalServerError, serve(&fakeChecker{err: errors.New("down")}, nil))

	checker := &fakeChecker{}
	assert.Equal(t, http.StatusOK, serve(checker, func(*gin.Context) bool { return true }))
	assert.Zero(t, checker.calls)
}

// TestOperatorMiddleware 测试运维权限检查固定的 workflow 对象
func TestOperatorMiddleware(t *testing.T) {
	checker := &fakeChecker{allowed: true}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		SetIdentity(c, workflow.Identity{UserID: "ops"})
	})
	router.POST("/workflows/import", OperatorMiddleware(checker), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/workflows/import", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "workflow:global", checker.object)
}

// TestPermissionCache 测试缓存过期
func TestPermissionCache(t *testing.T) {
	cache := NewPermissionCache(50 * time.Millisecond)
	key := permissionKey("U1", RelationViewer, ObjectApprovalRequest, "r1")

	cache.Set(key, true)
	v, ok := cache.Get(key)
	assert.True(t, ok)
	assert.True(t, v)

	time.Sleep(80 * time.Millisecond)
	_, ok = cache.Get(key)
	assert.False(t, ok)
}

// TestGetPermissionModel 测试权限模型包含审批请求类型
func TestGetPermissionModel(t *testing.T) {
	m := GetPermissionModel()
	assert.Contains(t, m, "type approval_request")
	assert.Contains(t, m, "define submitter: [user]")
}
