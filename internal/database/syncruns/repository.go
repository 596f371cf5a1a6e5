// Package syncruns records the history of catalog reconciliations.
//
// # Interface Implementation
//
//	var _ catalogsync.RunRecorder = (*Repository)(nil)
//
// # Usage
//
//	repo := syncruns.NewRepository(db)
//	run, err := repo.Start(entities.SyncTriggerReconnect)
//	...
//	err = repo.Complete(run, nil)
package syncruns

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/epubshelf/internal/entities"
)

var ErrNoRuns = errors.New("no reconciliation runs recorded")

// staleAfter marks a running record as interrupted.
const staleAfter = 10 * time.Minute

// Repository handles all sync run database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new sync runs repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Start creates a running record for a new reconciliation.
func (r *Repository) Start(trigger entities.SyncTrigger) (*entities.SyncRun, error) {
	now := time.Now()
	run := &entities.SyncRun{
		Trigger:   trigger,
		Status:    entities.SyncStatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Complete stores the final counters of run and marks it completed, or
// failed when runErr is non-nil.
func (r *Repository) Complete(run *entities.SyncRun, runErr error) error {
	now := time.Now()
	run.Status = entities.SyncStatusCompleted
	if runErr != nil {
		run.Status = entities.SyncStatusFailed
		run.Error = runErr.Error()
	}
	run.UpdatedAt = now
	run.CompletedAt = &now
	return r.db.Save(run).Error
}

// Latest returns the most recently started run.
func (r *Repository) Latest() (*entities.SyncRun, error) {
	var run entities.SyncRun
	err := r.db.Order("started_at DESC, id DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns up to limit runs, newest first.
func (r *Repository) List(limit int) ([]entities.SyncRun, error) {
	var runs []entities.SyncRun
	query := r.db.Order("started_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&runs).Error
	return runs, err
}

// IsRunning checks if a reconciliation is currently in progress.
// A run is considered stale if not updated in 10 minutes and is marked failed.
func (r *Repository) IsRunning() (bool, error) {
	var run entities.SyncRun
	err := r.db.Where("status = ?", entities.SyncStatusRunning).Order("id DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if run.UpdatedAt.Before(time.Now().Add(-staleAfter)) {
		_ = r.Complete(&run, errors.New("reconciliation was interrupted"))
		return false, nil
	}

	return true, nil
}
