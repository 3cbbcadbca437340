package vectordb

import (
	"errors"
	"fmt"
)

// StoreUnavailableError 向量库不可达或拒绝请求
// 对当前操作是致命的，调用方不应重试单个点
type StoreUnavailableError struct {
	Op         string // 操作名称，如 ensure_collection、upsert、search
	Collection string // 集合名称
	Err        error  // 底层错误
}

// Error 实现error接口
func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("vector store %s on collection %q failed: %v", e.Op, e.Collection, e.Err)
}

// Unwrap 返回底层错误
func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// unavailable 包装底层错误
func unavailable(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreUnavailableError{Op: op, Collection: collection, Err: err}
}

// AsStoreUnavailable 将任意向量库错误包装为StoreUnavailableError，已是该类型时原样返回
func AsStoreUnavailable(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var sue *StoreUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return unavailable(op, collection, err)
}
