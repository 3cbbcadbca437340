package model

import (
	"mime/multipart"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 计算偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// DocumentUploadRequest 文档上传请求
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"` // PDF文件
}

// SearchRequest 相似度检索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required"`                 // 查询文本
	TopK  int    `json:"top_k" binding:"omitempty,min=1,max=100"` // 返回结果数，默认5
}

// RunListRequest 处理记录列表请求
type RunListRequest struct {
	PaginationRequest
	Status   string `form:"status" binding:"omitempty,oneof=processing completed failed"` // 状态过滤
	FileName string `form:"file_name"`                                                    // 文件名过滤
}

// RunRequest 单条处理记录请求
type RunRequest struct {
	ID string `uri:"id" binding:"required,uuid"` // 处理记录ID
}
