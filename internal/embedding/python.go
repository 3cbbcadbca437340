package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-indexer/internal/pyprovider"
)

// PythonEmbeddingClient 使用Python服务的嵌入客户端
// 默认模型为all-MiniLM-L6-v2，输出384维向量
type PythonEmbeddingClient struct {
	client    *pyprovider.EmbeddingClient // Python嵌入服务客户端
	modelName string                      // 模型名称
	dimension int                         // 向量维度
	batchSize int                         // 批处理大小
}

// NewPythonClient 创建一个新的Python嵌入服务客户端
func NewPythonClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.Model == "" {
		cfg.Model = pyprovider.DefaultModel
	}

	pyConfig := pyprovider.DefaultConfig().
		WithTimeout(cfg.Timeout).
		WithRetry(cfg.MaxRetries, time.Second).
		WithAPIKey(cfg.APIKey)
	if cfg.BaseURL != "" {
		pyConfig.WithBaseURL(cfg.BaseURL)
	}

	httpClient, err := pyprovider.NewClient(pyConfig, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Python service HTTP client: %w", err)
	}

	return &PythonEmbeddingClient{
		client:    pyprovider.NewEmbeddingClient(httpClient),
		modelName: cfg.Model,
		dimension: cfg.Dimensions,
		batchSize: cfg.BatchSize,
	}, nil
}

// Embed 生成单条文本的向量表示
func (c *PythonEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	vec, err := c.client.Embed(ctx, text, c.modelName, 0)
	if err != nil {
		return nil, convertPyError(err)
	}
	if err := checkVector(vec, c.dimension); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch 按批大小分批请求
func (c *PythonEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyText
		}
	}

	result := make([][]float32, 0, len(texts))
	for _, batch := range splitBatches(texts, c.batchSize) {
		vecs, err := c.client.EmbedBatch(ctx, batch, c.modelName, 0, false)
		if err != nil {
			return nil, convertPyError(err)
		}
		for _, v := range vecs {
			if err := checkVector(v, c.dimension); err != nil {
				return nil, err
			}
		}
		result = append(result, vecs...)
	}
	return result, nil
}

// Name 返回模型名称
func (c *PythonEmbeddingClient) Name() string {
	return c.modelName
}

// Dimension 返回向量维度
func (c *PythonEmbeddingClient) Dimension() int {
	return c.dimension
}

// convertPyError 将Python服务错误转换为嵌入错误
func convertPyError(err error) error {
	var apiErr *pyprovider.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(apiErr.StatusCode, apiErr.Detail)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fromTransport(err)
}

// 注册Python嵌入客户端
func init() {
	RegisterClient("python", NewPythonClient)
}
