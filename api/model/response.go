package model

import (
	"time"

	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// SearchHit 单条检索结果
type SearchHit struct {
	Score   float32        `json:"score"`   // 相似度得分
	Payload models.Payload `json:"payload"` // 溯源载荷
}

// SearchResponse 检索响应
type SearchResponse struct {
	Query   string      `json:"query"`   // 查询文本
	TopK    int         `json:"top_k"`   // 请求的结果数
	Results []SearchHit `json:"results"` // 按得分降序排列的结果
}

// ConvertSearchResults 将向量库结果转换为响应结构
func ConvertSearchResults(results []vectordb.SearchResult) []SearchHit {
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{Score: r.Score, Payload: r.Payload}
	}
	return hits
}

// RunInfo 处理记录信息
type RunInfo struct {
	RunID      string     `json:"run_id"`
	FileName   string     `json:"filename"`
	StorageID  string     `json:"storage_id,omitempty"`
	Collection string     `json:"collection"`
	Status     string     `json:"status"`
	Pages      int        `json:"pages"`
	Paragraphs int        `json:"paragraphs"`
	Tables     int        `json:"tables"`
	Images     int        `json:"images"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRunInfo 将处理记录转换为响应结构
func NewRunInfo(run *models.IngestRun) RunInfo {
	return RunInfo{
		RunID:      run.ID,
		FileName:   run.FileName,
		StorageID:  run.StorageID,
		Collection: run.Collection,
		Status:     string(run.Status),
		Pages:      run.Pages,
		Paragraphs: run.Paragraphs,
		Tables:     run.Tables,
		Images:     run.Images,
		Skipped:    run.Skipped,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

// UnitInfo 已入库单元信息
type UnitInfo struct {
	PointID uint64          `json:"point_id"`
	Kind    models.UnitKind `json:"kind"`
	Page    int             `json:"page"`
	Ordinal int             `json:"ordinal"`
	Text    string          `json:"text"`
}

// RunDetailResponse 处理记录详情响应
type RunDetailResponse struct {
	RunInfo
	Units []UnitInfo `json:"units"`
}

// RunListResponse 处理记录列表响应
type RunListResponse struct {
	PaginationResponse
	Runs []RunInfo `json:"runs"`
}

// PaginationResponse 分页响应信息
type PaginationResponse struct {
	Total    int64 `json:"total"`     // 总记录数
	Page     int   `json:"page"`      // 当前页码
	PageSize int   `json:"page_size"` // 每页大小
}
