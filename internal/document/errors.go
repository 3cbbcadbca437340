package document

import (
	"fmt"

	"github.com/fyerfyer/pdf-indexer/internal/models"
)

// DocumentOpenError 文档无法打开或解析
// 属于致命错误，会中止整个处理流程
type DocumentOpenError struct {
	Path string // 文档路径
	Err  error  // 底层错误
}

// Error 实现error接口
func (e *DocumentOpenError) Error() string {
	return fmt.Sprintf("failed to open document %s: %v", e.Path, e.Err)
}

// Unwrap 返回底层错误
func (e *DocumentOpenError) Unwrap() error {
	return e.Err
}

// ExtractionError 单个单元抽取失败
// 可恢复，调用方记录日志后跳过该单元
type ExtractionError struct {
	Kind  models.UnitKind // 单元类型
	Page  int             // 页码
	Index int             // 在页内的位置
	Err   error           // 底层错误
}

// Error 实现error接口
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract %s %d on page %d: %v", e.Kind, e.Index, e.Page, e.Err)
}

// Unwrap 返回底层错误
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
