package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/sirupsen/logrus"
)

// Captioner 图片说明生成接口
// 由OCR实现，返回的文本可以为空
type Captioner interface {
	Caption(ctx context.Context, img image.Image) (string, error)
}

// CaptionerFunc 函数适配器
type CaptionerFunc func(ctx context.Context, img image.Image) (string, error)

// Caption 实现Captioner接口
func (f CaptionerFunc) Caption(ctx context.Context, img image.Image) (string, error) {
	return f(ctx, img)
}

// Segments 分段结果，三个批次互不合并
type Segments struct {
	Paragraphs []models.ExtractedUnit
	Tables     []models.ExtractedUnit
	Images     []models.ExtractedUnit
	Skipped    int // 抽取失败而被跳过的单元数
}

// Segmenter 文档分段器
// 将页面切分为段落、类表格块和图片说明
type Segmenter struct {
	captioner Captioner
	logger    *logrus.Logger
}

// SegmenterOption 分段器配置选项
type SegmenterOption func(*Segmenter)

// WithSegmenterLogger 设置日志记录器
func WithSegmenterLogger(logger *logrus.Logger) SegmenterOption {
	return func(s *Segmenter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSegmenter 创建分段器
// captioner为nil时，所有图片都使用占位说明
func NewSegmenter(captioner Captioner, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		captioner: captioner,
		logger:    logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment 依次产出段落、表格和图片三个批次
func (s *Segmenter) Segment(ctx context.Context, pages []Page) (*Segments, error) {
	seg := &Segments{
		Paragraphs: Paragraphs(pages),
		Tables:     Tables(pages),
	}

	images, skipped, err := s.Images(ctx, pages)
	if err != nil {
		return nil, err
	}
	seg.Images = images
	seg.Skipped = skipped

	return seg, nil
}

// SplitBlocks 按空行切分文本，返回去除首尾空白后的非空片段
func SplitBlocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var blocks []string
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		blocks = append(blocks, part)
	}
	return blocks
}

// IsTableBlock 判断片段是否为类表格块（含竖线或制表符）
func IsTableBlock(block string) bool {
	return strings.ContainsAny(block, "|\t")
}

// Paragraphs 抽取所有段落，序号在每页内从1开始
func Paragraphs(pages []Page) []models.ExtractedUnit {
	var units []models.ExtractedUnit
	for _, page := range pages {
		for i, block := range SplitBlocks(page.Text) {
			units = append(units, models.ExtractedUnit{
				Kind:    models.KindParagraph,
				Content: block,
				Page:    page.Number,
				Ordinal: i + 1,
			})
		}
	}
	return units
}

// Tables 抽取所有类表格块
// 与段落的重叠是预期行为，表格同时携带描述
func Tables(pages []Page) []models.ExtractedUnit {
	var units []models.ExtractedUnit
	for _, page := range pages {
		n := 0
		for _, block := range SplitBlocks(page.Text) {
			if !IsTableBlock(block) {
				continue
			}
			n++
			units = append(units, models.ExtractedUnit{
				Kind:    models.KindTable,
				Content: block,
				Caption: fmt.Sprintf("Table %d on page %d", n, page.Number),
				Page:    page.Number,
				Ordinal: n,
			})
		}
	}
	return units
}

// Images 为每张嵌入图片生成说明
// 单张图片解码或识别失败时记录日志并跳过，返回跳过的数量
// 整页图片提取失败计为一次跳过
func (s *Segmenter) Images(ctx context.Context, pages []Page) ([]models.ExtractedUnit, int, error) {
	var units []models.ExtractedUnit
	skipped := 0

	for _, page := range pages {
		if page.ImageErr != nil {
			s.logger.WithFields(logrus.Fields{
				"page":  page.Number,
				"error": page.ImageErr,
			}).Warn("Failed to extract images from page")
			skipped++
		}

		for _, raw := range page.Images {
			if err := ctx.Err(); err != nil {
				return nil, skipped, err
			}

			caption, err := s.caption(ctx, page.Number, raw)
			if err != nil {
				// 取消不属于单张图片的失败
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, skipped, err
				}
				s.logger.WithFields(logrus.Fields{
					"page":  page.Number,
					"index": raw.Index,
					"obj":   raw.ObjNr,
					"error": err,
				}).Warn("Skipping image")
				skipped++
				continue
			}

			units = append(units, models.ExtractedUnit{
				Kind:    models.KindImage,
				Caption: caption,
				Page:    page.Number,
				Ordinal: raw.Index,
			})
		}
	}

	return units, skipped, nil
}

// caption 解码并识别单张图片，空文本替换为占位说明
func (s *Segmenter) caption(ctx context.Context, pageNumber int, raw RawImage) (string, error) {
	img, err := DecodeImage(raw)
	if err != nil {
		return "", &ExtractionError{Kind: models.KindImage, Page: pageNumber, Index: raw.Index, Err: err}
	}

	text := ""
	if s.captioner != nil {
		text, err = s.captioner.Caption(ctx, img)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &ExtractionError{Kind: models.KindImage, Page: pageNumber, Index: raw.Index, Err: err}
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = PlaceholderCaption(raw.Index, pageNumber)
	}
	return text, nil
}

// PlaceholderCaption 图片无可识别文字时的说明
func PlaceholderCaption(index, page int) string {
	return fmt.Sprintf("Image %d on page %d", index, page)
}
