package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 基于go-cache实现的内存缓存
type MemoryCache struct {
	cache  *gocache.Cache
	prefix string
}

// NewMemoryCache 创建一个新的内存缓存
func NewMemoryCache(config Config) (Cache, error) {
	defaultExpiration := config.DefaultTTL
	if defaultExpiration == 0 {
		defaultExpiration = 24 * time.Hour
	}

	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}

	return &MemoryCache{
		cache:  gocache.New(defaultExpiration, cleanupInterval),
		prefix: config.Prefix,
	}, nil
}

func (m *MemoryCache) key(k string) string {
	return GenerateCacheKey(m.prefix, k)
}

// Get 获取缓存内容
func (m *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	if value, found := m.cache.Get(m.key(key)); found {
		str, ok := value.(string)
		if !ok {
			return "", false, nil
		}
		return str, true, nil
	}
	return "", false, nil
}

// Set 设置缓存内容，ttl为0时使用默认过期时间
func (m *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.cache.Set(m.key(key), value, ttl)
	return nil
}

// Delete 删除缓存项
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.cache.Delete(m.key(key))
	return nil
}

// Clear 删除当前前缀下的所有缓存
func (m *MemoryCache) Clear(ctx context.Context) error {
	if m.prefix == "" {
		m.cache.Flush()
		return nil
	}
	for k := range m.cache.Items() {
		if strings.HasPrefix(k, m.prefix+":") {
			m.cache.Delete(k)
		}
	}
	return nil
}

// Close 内存缓存无需释放资源
func (m *MemoryCache) Close() error {
	return nil
}

// 在包初始化时注册内存缓存
func init() {
	RegisterCache("memory", NewMemoryCache)
}
