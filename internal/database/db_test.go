package database

import (
	"path/filepath"
	"testing"

	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupAndClose(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "test.db")
	cfg := DefaultConfig()
	cfg.DSN = dsn

	require.NoError(t, Setup(cfg, logrus.New()))
	db := MustDB()

	assert.True(t, db.Migrator().HasTable(&models.IngestRun{}))
	assert.True(t, db.Migrator().HasTable(&models.IndexedUnit{}))
	assert.FileExists(t, dsn)

	require.NoError(t, Close())
	assert.Panics(t, func() { MustDB() })
	assert.NoError(t, Close())
}

func TestOpenUnsupportedType(t *testing.T) {
	_, err := Open(&Config{Type: "oracle"}, nil)
	assert.Error(t, err)
}
