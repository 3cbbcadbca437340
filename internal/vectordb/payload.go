package vectordb

import (
	"encoding/json"

	"github.com/fyerfyer/pdf-indexer/internal/models"
)

// 载荷字段名，与models.Payload的json标签一致
const (
	fieldKind        = "kind"
	fieldContent     = "content"
	fieldDescription = "description"
	fieldPage        = "page"
	fieldOrdinal     = "ordinal"
)

// PayloadToMap 将载荷展开为通用键值对，供远程向量库存储
func PayloadToMap(p models.Payload) map[string]interface{} {
	m := map[string]interface{}{
		fieldKind:    string(p.Kind),
		fieldPage:    int64(p.Page),
		fieldOrdinal: int64(p.Ordinal),
	}
	if p.Content != "" {
		m[fieldContent] = p.Content
	}
	if p.Description != "" {
		m[fieldDescription] = p.Description
	}
	return m
}

// PayloadFromMap 从通用键值对还原载荷
// 数值可能以int64、float64或json.Number的形式出现
func PayloadFromMap(m map[string]interface{}) models.Payload {
	return models.Payload{
		Kind:        models.UnitKind(asString(m[fieldKind])),
		Content:     asString(m[fieldContent]),
		Description: asString(m[fieldDescription]),
		Page:        asInt(m[fieldPage]),
		Ordinal:     asInt(m[fieldOrdinal]),
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}
