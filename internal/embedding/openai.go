package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIClient OpenAI兼容接口的嵌入客户端
type OpenAIClient struct {
	client     *openai.Client // OpenAI API客户端
	model      string         // 使用的嵌入模型
	dimensions int            // 向量维度
	batchSize  int            // 批处理大小
	timeout    time.Duration  // 单次请求超时
	maxRetries int            // 限流时的最大重试次数
	logger     *logrus.Logger
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, "OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}, nil
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	vecs, err := c.create(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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
		vecs, err := c.create(ctx, batch)
		if err != nil {
			return nil, err
		}
		result = append(result, vecs...)
	}
	return result, nil
}

// create 发送一次嵌入请求，限流时指数退避重试
func (c *OpenAIClient) create(ctx context.Context, input []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      input,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	}

	for attempt := 0; ; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.CreateEmbeddings(reqCtx, req)
		cancel()

		if err == nil {
			if len(resp.Data) != len(input) {
				return nil, NewEmbeddingError(ErrCodeServerError,
					fmt.Sprintf("got %d embeddings for %d inputs", len(resp.Data), len(input)))
			}
			vecs := make([][]float32, len(input))
			for _, d := range resp.Data {
				if d.Index < 0 || d.Index >= len(input) {
					return nil, NewEmbeddingError(ErrCodeServerError, "embedding index out of range")
				}
				if err := checkVector(d.Embedding, c.dimensions); err != nil {
					return nil, err
				}
				vecs[d.Index] = d.Embedding
			}
			return vecs, nil
		}

		converted := convertOpenAIError(err)
		var embErr EmbeddingError
		if !errors.As(converted, &embErr) || embErr.Code != ErrCodeRateLimited || attempt >= c.maxRetries {
			return nil, converted
		}

		wait := time.Duration(1<<attempt) * time.Second
		c.logger.WithFields(logrus.Fields{
			"model":   c.model,
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).Warn("Embedding request rate limited, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Dimension 返回向量维度
func (c *OpenAIClient) Dimension() int {
	return c.dimensions
}

// convertOpenAIError 将SDK错误转换为嵌入错误
func convertOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fromStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fromTransport(err)
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
