package pyprovider

import (
	"context"
	"fmt"
	"net/url"
)

// DefaultModel Python服务默认的嵌入模型
const DefaultModel = "all-MiniLM-L6-v2"

// EmbeddingClient 是Python嵌入服务的客户端
type EmbeddingClient struct {
	client Client
}

// EmbeddingRequest 表示单个文本的嵌入请求
type EmbeddingRequest struct {
	Text string `json:"text"`
}

// BatchEmbeddingRequest 表示批量文本的嵌入请求
type BatchEmbeddingRequest struct {
	Texts []string `json:"texts"`
}

// EmbeddingResponse 表示单个文本的嵌入响应
type EmbeddingResponse struct {
	Success       bool      `json:"success"`
	Model         string    `json:"model"`
	Dimension     int       `json:"dimension"`
	Embedding     []float32 `json:"embedding"`
	TextLength    int       `json:"text_length"`
	ProcessTimeMs int       `json:"process_time_ms"`
}

// BatchEmbeddingResponse 表示批量文本的嵌入响应
type BatchEmbeddingResponse struct {
	Success       bool        `json:"success"`
	Model         string      `json:"model"`
	Count         int         `json:"count"`
	Dimension     int         `json:"dimension"`
	Embeddings    [][]float32 `json:"embeddings"`
	Normalized    bool        `json:"normalized"`
	ProcessTimeMs int         `json:"process_time_ms"`
}

// NewEmbeddingClient 创建一个新的嵌入客户端
func NewEmbeddingClient(client Client) *EmbeddingClient {
	return &EmbeddingClient{
		client: client,
	}
}

func embeddingPath(base, model string, dimension int, normalize bool) string {
	if model == "" {
		model = DefaultModel
	}
	q := url.Values{}
	q.Set("model", model)
	if dimension > 0 {
		q.Set("dimension", fmt.Sprint(dimension))
	}
	if normalize {
		q.Set("normalize", "true")
	}
	return base + "?" + q.Encode()
}

// Embed 使用指定模型将文本转换为嵌入向量，dimension为0时使用模型默认维度
func (c *EmbeddingClient) Embed(ctx context.Context, text, model string, dimension int) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text provided for embedding")
	}

	var response EmbeddingResponse
	path := embeddingPath("/python/embeddings", model, dimension, false)
	if err := c.client.Post(ctx, path, EmbeddingRequest{Text: text}, &response); err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("embedding generation failed: API returned failure status")
	}

	return response.Embedding, nil
}

// EmbedBatch 批量将文本转换为嵌入向量
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string, model string, dimension int, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty text list provided for batch embedding")
	}

	var response BatchEmbeddingResponse
	path := embeddingPath("/python/embeddings/batch", model, dimension, normalize)
	if err := c.client.Post(ctx, path, BatchEmbeddingRequest{Texts: texts}, &response); err != nil {
		return nil, fmt.Errorf("failed to generate batch embeddings: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("batch embedding generation failed: API returned failure status")
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("batch embedding returned %d vectors for %d texts", len(response.Embeddings), len(texts))
	}

	return response.Embeddings, nil
}
