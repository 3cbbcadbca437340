package repository

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/pdf-indexer/internal/database"
	"github.com/fyerfyer/pdf-indexer/internal/models"
	"gorm.io/gorm"
)

// saveBatchSize 批量插入单元时的分批大小
const saveBatchSize = 100

// runRepository 处理记录仓储实现
type runRepository struct {
	db *gorm.DB
}

// NewRunRepository 使用全局数据库连接创建仓储实例
func NewRunRepository() RunRepository {
	return &runRepository{db: database.MustDB()}
}

// NewRunRepositoryWithDB 使用指定的数据库连接创建仓储实例
func NewRunRepositoryWithDB(db *gorm.DB) RunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepository{db: db}
}

// Create 创建处理记录
func (r *runRepository) Create(run *models.IngestRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	if run.Status == "" {
		run.Status = models.RunStatusProcessing
	}
	return r.db.Create(run).Error
}

// Update 更新处理记录
func (r *runRepository) Update(run *models.IngestRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	switch run.Status {
	case models.RunStatusProcessing, models.RunStatusCompleted, models.RunStatusFailed:
	default:
		return fmt.Errorf("%w: %q", models.ErrInvalidRunStatus, run.Status)
	}
	return r.db.Save(run).Error
}

// GetByID 根据ID获取处理记录
func (r *runRepository) GetByID(id string) (*models.IngestRun, error) {
	var run models.IngestRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 列出处理记录，按开始时间倒序
func (r *runRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.IngestRun, int64, error) {
	var runs []*models.IngestRun
	var total int64

	query := r.db.Model(&models.IngestRun{})

	if filters != nil {
		if status, ok := filters["status"]; ok {
			if s := fmt.Sprintf("%v", status); s != "" {
				query = query.Where("status = ?", s)
			}
		}
		if coll, ok := filters["collection"].(string); ok && coll != "" {
			query = query.Where("collection = ?", coll)
		}
		if fileName, ok := filters["file_name"].(string); ok && fileName != "" {
			query = query.Where("file_name LIKE ?", "%"+fileName+"%")
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("started_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// SaveUnits 批量保存已入库单元
func (r *runRepository) SaveUnits(units []*models.IndexedUnit) error {
	if len(units) == 0 {
		return nil
	}
	for _, u := range units {
		if u.RunID == "" {
			return errors.New("unit run ID cannot be empty")
		}
	}
	return r.db.CreateInBatches(units, saveBatchSize).Error
}

// GetUnits 获取某次处理的全部单元，按点ID排序
func (r *runRepository) GetUnits(runID string) ([]*models.IndexedUnit, error) {
	var units []*models.IndexedUnit
	err := r.db.Where("run_id = ?", runID).Order("point_id ASC").Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

// MaxPointID 返回集合中已使用的最大点ID
func (r *runRepository) MaxPointID(collection string) (uint64, bool, error) {
	var count int64
	query := r.db.Model(&models.IndexedUnit{}).Where("collection = ?", collection)
	if err := query.Count(&count).Error; err != nil {
		return 0, false, err
	}
	if count == 0 {
		return 0, false, nil
	}

	var max uint64
	err := r.db.Model(&models.IndexedUnit{}).
		Where("collection = ?", collection).
		Select("MAX(point_id)").
		Scan(&max).Error
	if err != nil {
		return 0, false, err
	}
	return max, true, nil
}
