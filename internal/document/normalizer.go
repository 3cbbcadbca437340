package document

import (
	"strings"

	"github.com/fyerfyer/pdf-indexer/internal/models"
)

// Normalize 将单元转换为待嵌入的记录
// 优先使用内容，其次使用说明；两者皆空的单元返回false
func Normalize(u models.ExtractedUnit) (models.Record, bool) {
	text := u.Content
	if strings.TrimSpace(text) == "" {
		text = u.Caption
	}
	if strings.TrimSpace(text) == "" {
		return models.Record{}, false
	}

	return models.Record{
		TextForEmbedding: text,
		Payload:          models.PayloadOf(u),
	}, true
}

// NormalizeAll 批量归一化，返回记录和被排除的数量
func NormalizeAll(units []models.ExtractedUnit) ([]models.Record, int) {
	records := make([]models.Record, 0, len(units))
	excluded := 0
	for _, u := range units {
		rec, ok := Normalize(u)
		if !ok {
			excluded++
			continue
		}
		records = append(records, rec)
	}
	return records, excluded
}
