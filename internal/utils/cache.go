package utils

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem 包装缓存数据和过期时间
type CacheItem struct {
	Data      any
	ExpiresAt time.Time
}

// Cache 本地 LRU 缓存，条目带 TTL
type Cache struct {
	lruCache *lru.Cache[string, CacheItem]
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache holding at most size entries, each living for ttl.
func NewCache(size int, ttl time.Duration) (*Cache, error) {
	l, err := lru.New[string, CacheItem](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Cache{lruCache: l, ttl: ttl, now: time.Now}, nil
}

// Set 使用默认 TTL 设置缓存
func (c *Cache) Set(key string, data any) {
	c.SetTTL(key, data, c.ttl)
}

// SetTTL 设置缓存，TTL 为过期时间
func (c *Cache) SetTTL(key string, data any, ttl time.Duration) {
	c.lruCache.Add(key, CacheItem{
		Data:      data,
		ExpiresAt: c.now().Add(ttl),
	})
}

// Get 获取缓存，若不存在或已过期则返回 false
func (c *Cache) Get(key string) (any, bool) {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return nil, false
	}

	// 检查过期
	if c.now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return nil, false
	}

	return val.Data, true
}

// Delete 删除指定缓存
func (c *Cache) Delete(key string) {
	c.lruCache.Remove(key)
}
