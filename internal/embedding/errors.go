package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// EmbeddingError 嵌入错误类型
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey     = 1001 // 无效的API密钥
	ErrCodeInvalidRequest    = 1002 // 无效的请求
	ErrCodeNetworkError      = 1003 // 网络连接错误
	ErrCodeRateLimited       = 1004 // 请求频率超限
	ErrCodeServerError       = 1005 // 服务器错误
	ErrCodeTimeout           = 1006 // 请求超时
	ErrCodeEmptyInput        = 1007 // 输入为空
	ErrCodeDimensionMismatch = 1008 // 向量维度不符
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey     = "invalid API key"
	ErrMsgInvalidRequest    = "invalid request parameters"
	ErrMsgRateLimited       = "too many requests, rate limit exceeded"
	ErrMsgServerError       = "server error occurred"
	ErrMsgTimeout           = "request timed out"
	ErrMsgEmptyInput        = "input text cannot be empty"
	ErrMsgNetworkError      = "network connection error"
	ErrMsgDimensionMismatch = "embedding dimension mismatch"
)

// 预定义错误
var (
	ErrEmptyText   = NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	ErrRateLimited = NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}

// IsEmbeddingError 判断是否为嵌入错误
func IsEmbeddingError(err error) bool {
	var e EmbeddingError
	return errors.As(err, &e)
}

// fromStatus 根据HTTP状态码构造错误
func fromStatus(status int, detail string) EmbeddingError {
	switch {
	case status == 401 || status == 403:
		return NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey+": "+detail)
	case status == 429:
		return NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited+": "+detail)
	case status >= 500:
		return NewEmbeddingError(ErrCodeServerError, ErrMsgServerError+": "+detail)
	default:
		return NewEmbeddingError(ErrCodeInvalidRequest, ErrMsgInvalidRequest+": "+detail)
	}
}

// fromTransport 将传输层错误转换为嵌入错误
func fromTransport(err error) EmbeddingError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError(ErrCodeTimeout, ErrMsgTimeout+": "+err.Error())
	}
	return NewEmbeddingError(ErrCodeNetworkError, ErrMsgNetworkError+": "+err.Error())
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
