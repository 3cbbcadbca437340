package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus 处理任务状态
type RunStatus string

const (
	// RunStatusProcessing 处理中
	RunStatusProcessing RunStatus = "processing"
	// RunStatusCompleted 处理完成
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed 处理失败
	RunStatusFailed RunStatus = "failed"
)

// IngestRun 一次文档处理记录
type IngestRun struct {
	ID         string         `gorm:"primaryKey"`         // 运行ID
	FileName   string         `gorm:"not null"`           // 文件名
	FilePath   string         `gorm:"not null"`           // 文件路径
	StorageID  string         `gorm:"size:64;index"`      // 归档存储中的文件ID
	Collection string         `gorm:"not null;index"`     // 目标集合
	Status     RunStatus      `gorm:"not null;index"`     // 状态
	Pages      int            `gorm:"not null;default:0"` // 页数
	Paragraphs int            `gorm:"not null;default:0"` // 已入库段落数
	Tables     int            `gorm:"not null;default:0"` // 已入库表格块数
	Images     int            `gorm:"not null;default:0"` // 已入库图片数
	Skipped    int            `gorm:"not null;default:0"` // 跳过的单元数
	Error      string         `gorm:"type:text"`          // 错误信息
	Metadata   datatypes.JSON `gorm:"type:json"`          // 附加元数据
	StartedAt  time.Time      `gorm:"not null;index"`     // 开始时间
	FinishedAt *time.Time     `gorm:"index"`              // 结束时间
	UpdatedAt  time.Time      `gorm:"not null"`           // 更新时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (r *IngestRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (r *IngestRun) BeforeUpdate(tx *gorm.DB) (err error) {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (IngestRun) TableName() string {
	return "ingest_runs"
}

// Total 已入库单元总数
func (r *IngestRun) Total() int {
	return r.Paragraphs + r.Tables + r.Images
}

// IndexedUnit 已写入向量库的单元
type IndexedUnit struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	RunID      string    `gorm:"not null;index"`     // 所属运行ID
	Collection string    `gorm:"not null;index"`     // 集合名称
	PointID    uint64    `gorm:"not null;index"`     // 向量库中的点ID
	Kind       UnitKind  `gorm:"not null;size:16"`   // 单元类型
	Page       int       `gorm:"not null"`           // 页码
	Ordinal    int       `gorm:"not null"`           // 序号
	Text       string    `gorm:"type:text;not null"` // 嵌入文本
	CreatedAt  time.Time `gorm:"not null"`           // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (u *IndexedUnit) BeforeCreate(tx *gorm.DB) (err error) {
	u.CreatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (IndexedUnit) TableName() string {
	return "indexed_units"
}
