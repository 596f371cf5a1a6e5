package syncruns

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/epubshelf/internal/entities"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "runs.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.SyncRun{}))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return NewRepository(db)
}

func TestRepository_Start(t *testing.T) {
	repo := setupTestDB(t)

	run, err := repo.Start(entities.SyncTriggerReconnect)
	require.NoError(t, err)
	assert.NotZero(t, run.ID)

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, entities.SyncStatusRunning, latest.Status)
	assert.Equal(t, entities.SyncTriggerReconnect, latest.Trigger)
	assert.Nil(t, latest.CompletedAt)
}

func TestRepository_Complete_Success(t *testing.T) {
	repo := setupTestDB(t)

	run, err := repo.Start(entities.SyncTriggerManual)
	require.NoError(t, err)

	run.AddedLocal = 2
	run.Pushed = 1
	run.FileUploads = 1
	require.NoError(t, repo.Complete(run, nil))

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, latest.Status)
	assert.NotNil(t, latest.CompletedAt)
	assert.Equal(t, 4, latest.Mutations())
	assert.Empty(t, latest.Error)
}

func TestRepository_Complete_Failure(t *testing.T) {
	repo := setupTestDB(t)

	run, err := repo.Start(entities.SyncTriggerManual)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(run, errors.New("remote list failed")))

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, latest.Status)
	assert.Equal(t, "remote list failed", latest.Error)
}

func TestRepository_Latest_Empty(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.Latest()
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestRepository_List(t *testing.T) {
	repo := setupTestDB(t)
	for i := 0; i < 3; i++ {
		run, err := repo.Start(entities.SyncTriggerTask)
		require.NoError(t, err)
		require.NoError(t, repo.Complete(run, nil))
	}

	runs, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Greater(t, runs[0].ID, runs[1].ID)
}

func TestRepository_IsRunning(t *testing.T) {
	repo := setupTestDB(t)

	running, err := repo.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)

	run, err := repo.Start(entities.SyncTriggerManual)
	require.NoError(t, err)

	running, err = repo.IsRunning()
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, repo.Complete(run, nil))
	running, err = repo.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)
}

func TestRepository_IsRunning_StaleRun(t *testing.T) {
	repo := setupTestDB(t)

	run, err := repo.Start(entities.SyncTriggerReconnect)
	require.NoError(t, err)

	repo.db.Model(&entities.SyncRun{}).
		Where("id = ?", run.ID).
		UpdateColumn("updated_at", time.Now().Add(-15*time.Minute))

	running, err := repo.IsRunning()
	require.NoError(t, err)
	assert.False(t, running)

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, latest.Status)
	assert.Equal(t, "reconciliation was interrupted", latest.Error)
}
