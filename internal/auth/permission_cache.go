package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PermissionCache 权限缓存
type PermissionCache struct {
	cache *sync.Map
	ttl   time.Duration
}

// cacheEntry 缓存条目
type cacheEntry struct {
	value     bool
	expiresAt time.Time
}

// NewPermissionCache 创建权限缓存
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		cache: &sync.Map{},
		ttl:   ttl,
	}
}

// Get 获取缓存
func (c *PermissionCache) Get(key string) (bool, bool) {
	val, found := c.cache.Load(key)
	if !found {
		return false, false
	}

	entry := val.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		// 已过期，删除
		c.cache.Delete(key)
		return false, false
	}

	return entry.value, true
}

// Set 设置缓存
func (c *PermissionCache) Set(key string, value bool) {
	entry := &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.cache.Store(key, entry)
}

// Clear 清空缓存
func (c *PermissionCache) Clear() {
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}

// permissionKey 缓存 key
func permissionKey(userID, relation, objectType, objectID string) string {
	return fmt.Sprintf("user:%s:%s:%s:%s", userID, relation, objectType, objectID)
}

// CachedOpenFGAClient 带缓存的 OpenFGA 客户端
type CachedOpenFGAClient struct {
	client *OpenFGAClient
	cache  *PermissionCache
}

// NewCachedOpenFGAClient 创建带缓存的 OpenFGA 客户端
func NewCachedOpenFGAClient(client *OpenFGAClient, cache *PermissionCache) *CachedOpenFGAClient {
	return &CachedOpenFGAClient{
		client: client,
		cache:  cache,
	}
}

// CheckPermission 检查权限（带缓存）
func (c *CachedOpenFGAClient) CheckPermission(
	ctx context.Context,
	userID string,
	relation string,
	objectType string,
	objectID string,
) (bool, error) {
	cacheKey := permissionKey(userID, relation, objectType, objectID)

	// 从缓存获取
	if value, found := c.cache.Get(cacheKey); found {
		return value, nil
	}

	// 缓存未命中，查询 OpenFGA
	allowed, err := c.client.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}

	// 写入缓存
	c.cache.Set(cacheKey, allowed)

	return allowed, nil
}

// GrantRequestAccess 写入提交人关系（清除缓存）
func (c *CachedOpenFGAClient) GrantRequestAccess(ctx context.Context, requestID string, submitter string) error {
	return c.SetRelation(ctx, submitter, RelationSubmitter, ObjectApprovalRequest, requestID)
}

// SetRelation 设置权限关系（清除相关缓存）
func (c *CachedOpenFGAClient) SetRelation(
	ctx context.Context,
	userID string,
	relation string,
	objectType string,
	objectID string,
) error {
	err := c.client.SetRelation(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return err
	}

	// viewer 由 submitter 推导, 关系变化后清空缓存
	c.cache.Clear()

	return nil
}
