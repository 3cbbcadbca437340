package repository

import "github.com/fyerfyer/pdf-indexer/internal/models"

// RunRepository 处理记录仓储接口
// 负责处理记录和已入库单元的存储和检索
type RunRepository interface {
	// Create 创建处理记录
	Create(run *models.IngestRun) error

	// Update 更新处理记录
	Update(run *models.IngestRun) error

	// GetByID 根据ID获取处理记录
	GetByID(id string) (*models.IngestRun, error)

	// List 列出处理记录，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.IngestRun, int64, error)

	// SaveUnits 批量保存已入库单元
	SaveUnits(units []*models.IndexedUnit) error

	// GetUnits 获取某次处理的全部单元
	GetUnits(runID string) ([]*models.IndexedUnit, error)

	// MaxPointID 返回集合中已使用的最大点ID，没有记录时ok为false
	MaxPointID(collection string) (id uint64, ok bool, err error)
}
