package models

// UnitKind 可检索单元的类型
type UnitKind string

const (
	// KindParagraph 段落
	KindParagraph UnitKind = "paragraph"
	// KindTable 类表格块
	KindTable UnitKind = "table"
	// KindImage 图片说明
	KindImage UnitKind = "image"
)

// Valid 检查类型是否为已知值
func (k UnitKind) Valid() bool {
	switch k {
	case KindParagraph, KindTable, KindImage:
		return true
	default:
		return false
	}
}

// ExtractedUnit 从文档中抽取出的一个可检索片段
type ExtractedUnit struct {
	Kind    UnitKind // 单元类型
	Content string   // 段落或表格的文本内容
	Caption string   // 图片说明（OCR文本或占位符），表格的描述
	Page    int      // 所在页码，从1开始
	Ordinal int      // 在(页, 类型)内的序号，从1开始
}

// Payload 随向量一起存储的溯源信息
// 字段与单元一一对应，经过向量库往返后保持不变
type Payload struct {
	Kind        UnitKind `json:"kind"`
	Content     string   `json:"content,omitempty"`
	Description string   `json:"description,omitempty"`
	Page        int      `json:"page"`
	Ordinal     int      `json:"ordinal"`
}

// Record 归一化后、等待嵌入的记录
type Record struct {
	TextForEmbedding string  // 用于生成向量的文本
	Payload          Payload // 溯源载荷
}

// PayloadOf 将单元字段原样映射为载荷
func PayloadOf(u ExtractedUnit) Payload {
	return Payload{
		Kind:        u.Kind,
		Content:     u.Content,
		Description: u.Caption,
		Page:        u.Page,
		Ordinal:     u.Ordinal,
	}
}
