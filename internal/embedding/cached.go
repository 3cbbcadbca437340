package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/fyerfyer/pdf-indexer/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端
// 相同文本只请求一次模型，段落与表格重叠时尤其有用
type CachedClient struct {
	Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 包装一个嵌入客户端
func NewCachedClient(inner Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedClient{
		Client: inner,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// cacheKey 键包含模型和维度，切换模型后不会命中旧向量
func (c *CachedClient) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.GenerateCacheKey("emb", c.Name(), strconv.Itoa(c.Dimension()), hex.EncodeToString(sum[:]))
}

func (c *CachedClient) lookup(ctx context.Context, text string) ([]float32, bool) {
	raw, found, err := c.cache.Get(ctx, c.cacheKey(text))
	if err != nil {
		c.logger.WithError(err).Warn("Embedding cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (c *CachedClient) store(ctx context.Context, text string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(text), string(data), c.ttl); err != nil {
		c.logger.WithError(err).Warn("Embedding cache write failed")
	}
}

// Embed 先查缓存，未命中再请求模型
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(ctx, text); ok {
		return vec, nil
	}
	vec, err := c.Client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, text, vec)
	return vec, nil
}

// EmbedBatch 只为未命中的文本请求模型
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missing []string
	var positions []int

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, text)
		positions = append(positions, i)
	}

	if len(missing) == 0 {
		return result, nil
	}

	vecs, err := c.Client.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		result[positions[j]] = vec
		c.store(ctx, missing[j], vec)
	}
	return result, nil
}
