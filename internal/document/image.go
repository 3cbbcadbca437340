package document

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// 注册常见的栅格解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage 图片没有数据
var ErrEmptyImage = errors.New("image has no data")

// DecodeImage 将嵌入图片的原始字节解码为image.Image
func DecodeImage(raw RawImage) (image.Image, error) {
	if len(raw.Data) == 0 {
		return nil, ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image (obj %d): %w", raw.FileType, raw.ObjNr, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decoded %s image has zero size", format)
	}
	return img, nil
}
