package document

import (
	"context"
)

// RawImage 页面中嵌入的原始图片
type RawImage struct {
	Index    int    // 在页内的位置，从1开始
	ObjNr    int    // PDF对象号，用于标识图片
	Name     string // 资源名称
	FileType string // 原始格式，例如 png、jpg、tif
	Data     []byte // 原始字节
}

// Page 文档中的一页
type Page struct {
	Number int        // 页码，从1开始
	Text   string     // 页面文本
	Images []RawImage // 嵌入图片，按文档顺序排列

	// ImageErr 图片提取失败时的错误，文本仍然可用
	ImageErr error
}

// Source 文档来源接口
// 提供页级文本和嵌入图片
type Source interface {
	// PageCount 返回页数
	PageCount() int

	// Page 读取指定页（从1开始）
	Page(ctx context.Context, number int) (Page, error)

	// Close 释放文档句柄
	Close() error
}

// Opener 根据文件路径打开文档来源
type Opener func(path string) (Source, error)

// Pages 按顺序读取文档的全部页面
func Pages(ctx context.Context, src Source) ([]Page, error) {
	pages := make([]Page, 0, src.PageCount())
	for i := 1; i <= src.PageCount(); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page, err := src.Page(ctx, i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}
