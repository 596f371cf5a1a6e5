package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/entities"
)

// ReconcileCatalogsTask runs a full local/remote reconciliation.
type ReconcileCatalogsTask struct {
	Trigger entities.SyncTrigger `json:"trigger"`
}

// Config returns the queue configuration for reconciliation tasks.
func (t ReconcileCatalogsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "reconcile_catalogs",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     10 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// Reconciler is implemented by catalogsync.Coordinator.
type Reconciler interface {
	ReconcileCatalogs(ctx context.Context, trigger entities.SyncTrigger) (*entities.SyncRun, error)
}

// ReconcileCatalogsProcessor creates a processor function for ReconcileCatalogsTask.
// A reconciliation requested while offline is dropped; the next reconnect
// schedules a new one.
func ReconcileCatalogsProcessor(r Reconciler) backlite.QueueProcessor[ReconcileCatalogsTask] {
	return func(ctx context.Context, task ReconcileCatalogsTask) error {
		if r == nil {
			return fmt.Errorf("reconciler not configured")
		}
		trigger := task.Trigger
		if trigger == "" {
			trigger = entities.SyncTriggerTask
		}

		run, err := r.ReconcileCatalogs(ctx, trigger)
		if errors.Is(err, catalogsync.ErrOffline) {
			log.Printf("[TASK] Reconciliation skipped: offline")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reconcile catalogs: %w", err)
		}

		log.Printf("[TASK] Reconciliation complete: %d remote, %d local, %d mutations",
			run.RemoteBooks, run.LocalBooks, run.Mutations())
		return nil
	}
}

// NewReconcileCatalogsQueue creates a backlite queue for reconciliation tasks.
func NewReconcileCatalogsQueue(r Reconciler) backlite.Queue {
	return backlite.NewQueue(ReconcileCatalogsProcessor(r))
}
