package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-indexer/internal/database"
	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	require.NoError(t, database.AutoMigrate(db), "Failed to run migrations")

	originalDB := database.DB
	database.DB = db

	cleanup := func() {
		database.DB = originalDB
	}
	return db, cleanup
}

func newRun(id string, started time.Time) *models.IngestRun {
	return &models.IngestRun{
		ID:         id,
		FileName:   id + ".pdf",
		FilePath:   "/tmp/" + id + ".pdf",
		Collection: "pdf_metadata_collection",
		StartedAt:  started,
	}
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository()

	run := newRun("run-1", time.Now())
	require.NoError(t, repo.Create(run))
	assert.Equal(t, models.RunStatusProcessing, run.Status)

	saved, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1.pdf", saved.FileName)
	assert.Equal(t, models.RunStatusProcessing, saved.Status)
	assert.Nil(t, saved.FinishedAt)

	_, err = repo.GetByID("missing")
	assert.ErrorIs(t, err, models.ErrRunNotFound)

	assert.Error(t, repo.Create(&models.IngestRun{}))
}

func TestRunRepository_Update(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepositoryWithDB(db)

	run := newRun("run-2", time.Now())
	require.NoError(t, repo.Create(run))

	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.Pages = 3
	run.Paragraphs = 5
	run.Tables = 1
	run.Images = 2
	run.Skipped = 1
	run.FinishedAt = &now
	require.NoError(t, repo.Update(run))

	saved, err := repo.GetByID("run-2")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, saved.Status)
	assert.Equal(t, 8, saved.Total())
	assert.Equal(t, 1, saved.Skipped)
	assert.NotNil(t, saved.FinishedAt)

	run.Status = "unknown"
	assert.ErrorIs(t, repo.Update(run), models.ErrInvalidRunStatus)
}

func TestRunRepository_List(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepositoryWithDB(db)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		run := newRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(run))
		if i%2 == 0 {
			run.Status = models.RunStatusCompleted
			require.NoError(t, repo.Update(run))
		}
	}

	runs, total, err := repo.List(0, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-4", runs[0].ID, "newest run first")
	assert.Equal(t, "run-3", runs[1].ID)

	runs, total, err = repo.List(0, 10, map[string]interface{}{"status": models.RunStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, runs, 3)

	runs, total, err = repo.List(0, 10, map[string]interface{}{"file_name": "run-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestRunRepository_Units(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepositoryWithDB(db)
	require.NoError(t, repo.Create(newRun("run-a", time.Now())))

	_, ok, err := repo.MaxPointID("pdf_metadata_collection")
	require.NoError(t, err)
	assert.False(t, ok)

	units := []*models.IndexedUnit{
		{RunID: "run-a", Collection: "pdf_metadata_collection", PointID: 2, Kind: models.KindTable, Page: 1, Ordinal: 1, Text: "a | b"},
		{RunID: "run-a", Collection: "pdf_metadata_collection", PointID: 0, Kind: models.KindParagraph, Page: 1, Ordinal: 1, Text: "Intro"},
		{RunID: "run-a", Collection: "pdf_metadata_collection", PointID: 1, Kind: models.KindParagraph, Page: 1, Ordinal: 2, Text: "a | b"},
		{RunID: "run-a", Collection: "other", PointID: 40, Kind: models.KindImage, Page: 2, Ordinal: 1, Text: "Image 1 on page 2"},
	}
	require.NoError(t, repo.SaveUnits(units))
	require.NoError(t, repo.SaveUnits(nil))

	got, err := repo.GetUnits("run-a")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, uint64(0), got[0].PointID)
	assert.Equal(t, "Intro", got[0].Text)

	max, ok, err := repo.MaxPointID("pdf_metadata_collection")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), max)

	max, ok, err = repo.MaxPointID("other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(40), max)

	assert.Error(t, repo.SaveUnits([]*models.IndexedUnit{{Text: "orphan"}}))
}
