package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCache 两种实现共用的行为测试
func testCache(t *testing.T, cache Cache, expire func(d time.Duration)) {
	ctx := context.Background()

	// 测试Set和Get
	require.NoError(t, cache.Set(ctx, "key1", "value1", 0))
	val, found, err := cache.Get(ctx, "key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	// 测试不存在的键
	val, found, err = cache.Get(ctx, "non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	// 测试过期
	require.NoError(t, cache.Set(ctx, "expire-soon", "temp-value", 500*time.Millisecond))
	expire(time.Second)
	_, found, err = cache.Get(ctx, "expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	// 测试删除
	require.NoError(t, cache.Set(ctx, "to-delete", "delete-me", 0))
	require.NoError(t, cache.Delete(ctx, "to-delete"))
	_, found, err = cache.Get(ctx, "to-delete")
	assert.NoError(t, err)
	assert.False(t, found)

	// 测试清空
	require.NoError(t, cache.Set(ctx, "key2", "value2", 0))
	require.NoError(t, cache.Clear(ctx))
	_, found, err = cache.Get(ctx, "key2")
	assert.NoError(t, err)
	assert.False(t, found)
}

// TestMemoryCache 测试内存缓存的基本功能
func TestMemoryCache(t *testing.T) {
	cache, err := NewMemoryCache(Config{
		Type:            "memory",
		Prefix:          "test",
		DefaultTTL:      2 * time.Second,
		CleanupInterval: time.Second,
	})
	require.NoError(t, err)
	defer cache.Close()

	testCache(t, cache, time.Sleep)
}

// TestRedisCache 使用miniredis测试Redis缓存
func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(Config{
		Type:       "redis",
		Prefix:     "test",
		RedisAddr:  mr.Addr(),
		DefaultTTL: 2 * time.Second,
	})
	require.NoError(t, err)
	defer cache.Close()

	testCache(t, cache, mr.FastForward)
}

// TestRedisClearKeepsOtherPrefixes Clear只删除自己前缀下的键
func TestRedisClearKeepsOtherPrefixes(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("other:key", "keep"))

	cache, err := NewRedisCache(Config{RedisAddr: mr.Addr(), Prefix: "emb"})
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "a", "1", 0))
	require.NoError(t, cache.Clear(ctx))

	assert.False(t, mr.Exists("emb:a"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCacheUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(Config{RedisAddr: addr})
	assert.Error(t, err)
}

// TestCacheFactory 测试缓存工厂函数
func TestCacheFactory(t *testing.T) {
	memCache, err := NewCache(DefaultConfig())
	assert.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, memCache)

	mr := miniredis.RunT(t)
	redisCache, err := NewCache(Config{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, redisCache)
	redisCache.Close()

	// 未知类型回退为内存缓存
	unknownCache, err := NewCache(Config{Type: "unknown-type"})
	assert.NoError(t, err)
	assert.NotNil(t, unknownCache)
}

// TestGenerateCacheKey 测试缓存键生成
func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:part1:part2:part3", GenerateCacheKey("prefix", "part1", "part2", "part3"))
	assert.Equal(t, "a:b", GenerateCacheKey("", "a", "b"))
}
