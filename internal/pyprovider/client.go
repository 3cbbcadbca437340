package pyprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client 是Python服务的HTTP客户端接口
type Client interface {
	// Post 发送POST请求
	Post(ctx context.Context, path string, data interface{}, result interface{}) error
}

// HTTPClient 实现了Python服务的HTTP客户端
type HTTPClient struct {
	client  *http.Client
	config  *PyServiceConfig
	headers map[string]string
	logger  *logrus.Logger
}

// APIError 表示API调用返回的错误
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status code: %d): %s - %s", e.StatusCode, e.Message, e.Detail)
}

// Retryable 5xx和429可以重试
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NewClient 创建一个新的Python服务HTTP客户端
func NewClient(config *PyServiceConfig, logger *logrus.Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
		"User-Agent":   "pdf-indexer/1.0",
	}
	if config.APIKey != "" {
		headers["Authorization"] = "Bearer " + config.APIKey
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:  config,
		headers: headers,
		logger:  logger,
	}, nil
}

// Post 发送POST请求到Python服务
func (c *HTTPClient) Post(ctx context.Context, path string, data interface{}, result interface{}) error {
	var body []byte
	if data != nil {
		var err error
		body, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, body, result)
}

// do 执行HTTP请求并支持重试
// 每次重试重新构造请求，保证请求体完整
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, result interface{}) error {
	url := strings.TrimRight(c.config.BaseURL, "/") + path

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("request context canceled: %w", ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		lastErr = c.once(ctx, method, url, body, result)
		if lastErr == nil {
			return nil
		}
		if apiErr, ok := lastErr.(*APIError); ok && !apiErr.Retryable() {
			return apiErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("request context canceled: %w", ctx.Err())
		}

		c.logger.WithFields(logrus.Fields{
			"url":     url,
			"attempt": attempt + 1,
			"error":   lastErr,
		}).Warn("Python service request failed")
	}

	return lastErr
}

func (c *HTTPClient) once(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    "API call failed",
		}
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(data, &errResp); err == nil && errResp.Detail != "" {
			apiErr.Detail = errResp.Detail
		} else {
			apiErr.Detail = string(data)
		}
		return apiErr
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("failed to unmarshal response JSON: %w", err)
		}
	}
	return nil
}
