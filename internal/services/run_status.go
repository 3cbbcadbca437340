package services

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// RunTracker 处理记录管理器
// 负责一次处理的生命周期状态，仓储为nil时只记录日志
type RunTracker struct {
	repo   repository.RunRepository // 处理记录仓储
	logger *logrus.Logger           // 日志记录器
	mu     sync.Mutex               // 保证状态转换的原子性
}

// NewRunTracker 创建处理记录管理器
func NewRunTracker(repo repository.RunRepository, logger *logrus.Logger) *RunTracker {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &RunTracker{
		repo:   repo,
		logger: logger,
	}
}

// Enabled 是否配置了仓储
func (t *RunTracker) Enabled() bool {
	return t.repo != nil
}

// Start 创建一条处理中的记录
func (t *RunTracker) Start(path, collection string) (*models.IngestRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run := &models.IngestRun{
		ID:         uuid.New().String(),
		FileName:   filepath.Base(path),
		FilePath:   path,
		Collection: collection,
		Status:     models.RunStatusProcessing,
		StartedAt:  time.Now(),
	}

	t.logger.WithFields(logrus.Fields{
		"run_id":     run.ID,
		"file":       run.FileName,
		"collection": collection,
	}).Info("Starting ingest run")

	if t.repo == nil {
		return run, nil
	}
	if err := t.repo.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create ingest run: %w", err)
	}
	return run, nil
}

// Complete 将记录标记为完成
func (t *RunTracker) Complete(run *models.IngestRun, metadata map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if run.Status != models.RunStatusProcessing {
		return fmt.Errorf("%w: run %s is %s, expected %s",
			models.ErrInvalidRunStatus, run.ID, run.Status, models.RunStatusProcessing)
	}

	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.FinishedAt = &now
	run.Metadata = encodeMetadata(metadata)

	t.logger.WithFields(logrus.Fields{
		"run_id":     run.ID,
		"paragraphs": run.Paragraphs,
		"tables":     run.Tables,
		"images":     run.Images,
		"skipped":    run.Skipped,
		"duration":   now.Sub(run.StartedAt).String(),
	}).Info("Ingest run completed")

	if t.repo == nil {
		return nil
	}
	return t.repo.Update(run)
}

// Fail 将记录标记为失败
func (t *RunTracker) Fail(run *models.IngestRun, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if run.Status != models.RunStatusProcessing {
		return fmt.Errorf("%w: run %s is %s, expected %s",
			models.ErrInvalidRunStatus, run.ID, run.Status, models.RunStatusProcessing)
	}

	now := time.Now()
	run.Status = models.RunStatusFailed
	run.FinishedAt = &now
	if cause != nil {
		run.Error = cause.Error()
	}

	t.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"error":  run.Error,
	}).Error("Ingest run failed")

	if t.repo == nil {
		return nil
	}
	return t.repo.Update(run)
}

// RecordUnits 保存已写入向量库的单元
func (t *RunTracker) RecordUnits(units []*models.IndexedUnit) error {
	if t.repo == nil || len(units) == 0 {
		return nil
	}
	return t.repo.SaveUnits(units)
}

// encodeMetadata 序列化附加元数据
func encodeMetadata(metadata map[string]interface{}) datatypes.JSON {
	if len(metadata) == 0 {
		return nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
