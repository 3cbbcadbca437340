package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFSource 基于PDF文件的文档来源
// 页面文本由ledongthuc/pdf按文字位置重建，嵌入图片由pdfcpu提取
type PDFSource struct {
	path   string
	file   *os.File
	reader *pdf.Reader
	conf   *model.Configuration
}

// OpenPDF 打开PDF文件
// 文件无法打开或不是合法PDF时返回DocumentOpenError
func OpenPDF(path string) (Source, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, &DocumentOpenError{Path: path, Err: err}
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	// 交叉校验页数，两个库对同一文件的理解需一致
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, &DocumentOpenError{Path: path, Err: err}
	}
	count, err := api.PageCount(f, conf)
	if err != nil {
		f.Close()
		return nil, &DocumentOpenError{Path: path, Err: err}
	}
	if count != r.NumPage() {
		f.Close()
		return nil, &DocumentOpenError{
			Path: path,
			Err:  fmt.Errorf("page count mismatch: %d vs %d", count, r.NumPage()),
		}
	}

	return &PDFSource{
		path:   path,
		file:   f,
		reader: r,
		conf:   conf,
	}, nil
}

// PageCount 返回页数
func (s *PDFSource) PageCount() int {
	return s.reader.NumPage()
}

// Page 读取一页的文本和嵌入图片
// 图片提取失败不影响文本，错误记录在Page.ImageErr中
func (s *PDFSource) Page(ctx context.Context, number int) (Page, error) {
	if number < 1 || number > s.PageCount() {
		return Page{}, fmt.Errorf("page %d out of range [1, %d]", number, s.PageCount())
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	page := Page{Number: number}

	p := s.reader.Page(number)
	if !p.V.IsNull() {
		text, err := pageText(p)
		if err != nil {
			return Page{}, fmt.Errorf("failed to read text of page %d: %w", number, err)
		}
		page.Text = text
	}

	images, err := s.images(number)
	if err != nil {
		page.ImageErr = err
	}
	page.Images = images

	return page, nil
}

// images 提取指定页的全部嵌入图片，按对象号排序
func (s *PDFSource) images(number int) ([]RawImage, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	pages, err := api.ExtractImagesRaw(s.file, []string{strconv.Itoa(number)}, s.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to extract images of page %d: %w", number, err)
	}

	var raw []model.Image
	for _, m := range pages {
		for _, img := range m {
			if img.PageNr != 0 && img.PageNr != number {
				continue
			}
			raw = append(raw, img)
		}
	}
	sort.Slice(raw, func(i, j int) bool {
		return raw[i].ObjNr < raw[j].ObjNr
	})

	result := make([]RawImage, 0, len(raw))
	for i, img := range raw {
		ri := RawImage{
			Index:    i + 1,
			ObjNr:    img.ObjNr,
			Name:     img.Name,
			FileType: img.FileType,
		}
		if img.Reader != nil {
			data, err := io.ReadAll(img)
			if err != nil {
				// 保留空数据，由分段器按解码失败处理
				ri.Data = nil
			} else {
				ri.Data = data
			}
		}
		result = append(result, ri)
	}
	return result, nil
}

// Close 关闭底层文件
func (s *PDFSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
