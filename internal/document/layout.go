package document

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// 基线相差不超过字号的该比例时视为同一行
	sameLineFactor = 0.3
	// 字符间距超过字号的该比例时补一个空格
	wordGapFactor = 0.15
	// 行距上限，以字号为单位
	maxPitchFactor = 1.6
	// 行间距超过常规行距的该倍数时视为段落分隔
	paragraphGapFactor = 1.5
)

// textLine 同一基线上的文字
type textLine struct {
	y     float64
	size  float64
	chars []pdf.Text
	text  string
}

// pageText 按文字位置重建页面文本
// 行之间用换行分隔，段落之间用空行分隔
func pageText(p pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("failed to interpret page content: %v", r)
		}
	}()
	return layoutText(p.Content().Text), nil
}

// layoutText 将定位字符排成行和段落
func layoutText(chars []pdf.Text) string {
	lines := groupLines(chars)
	if len(lines) == 0 {
		return ""
	}

	pitch := linePitch(lines)

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
			if pitch > 0 && lines[i-1].y-line.y > paragraphGapFactor*pitch {
				b.WriteString("\n")
			}
		}
		b.WriteString(line.text)
	}
	return b.String()
}

// groupLines 按基线分组，自上而下排序，丢弃空白行
func groupLines(chars []pdf.Text) []*textLine {
	var lines []*textLine
	for _, ch := range chars {
		if ch.S == "" || ch.S == "\n" || ch.S == "\r" {
			continue
		}

		size := ch.FontSize
		if size < 1 {
			size = 1
		}

		var line *textLine
		for _, l := range lines {
			if abs(l.y-ch.Y) <= sameLineFactor*max(size, l.size) {
				line = l
				break
			}
		}
		if line == nil {
			line = &textLine{y: ch.Y}
			lines = append(lines, line)
		}
		line.size = max(line.size, size)
		line.chars = append(line.chars, ch)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	result := lines[:0]
	for _, l := range lines {
		l.text = joinChars(l.chars, l.size)
		if l.text != "" {
			result = append(result, l)
		}
	}
	return result
}

// joinChars 从左到右拼接一行字符，间距较大处补空格
func joinChars(chars []pdf.Text, size float64) string {
	sort.SliceStable(chars, func(i, j int) bool {
		return chars[i].X < chars[j].X
	})

	var b strings.Builder
	for i, ch := range chars {
		if i > 0 {
			prev := chars[i-1]
			gap := ch.X - (prev.X + prev.W)
			if gap > wordGapFactor*size && prev.S != " " && ch.S != " " {
				b.WriteString(" ")
			}
		}
		b.WriteString(ch.S)
	}
	return strings.TrimSpace(b.String())
}

// linePitch 估计常规行距
// 取最小行间距，上限为中位字号的maxPitchFactor倍
func linePitch(lines []*textLine) float64 {
	pitch := 0.0
	for i := 1; i < len(lines); i++ {
		gap := lines[i-1].y - lines[i].y
		if gap <= 0 {
			continue
		}
		if pitch == 0 || gap < pitch {
			pitch = gap
		}
	}

	sizes := make([]float64, 0, len(lines))
	for _, l := range lines {
		sizes = append(sizes, l.size)
	}
	sort.Float64s(sizes)
	limit := maxPitchFactor * sizes[len(sizes)/2]

	if pitch == 0 || pitch > limit {
		return limit
	}
	return pitch
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
