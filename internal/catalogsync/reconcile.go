package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/epubshelf/internal/entities"
)

var errRemoteSkipped = errors.New("skipped after earlier remote failure")

// ReconcileCatalogs merges the local and remote catalogs and returns the
// run report. Concurrent calls are serialized; a second call with no
// intervening writes performs no mutations.
func (c *Coordinator) ReconcileCatalogs(ctx context.Context, trigger entities.SyncTrigger) (*entities.SyncRun, error) {
	c.reconcileMu.Lock()
	defer c.reconcileMu.Unlock()

	run := c.startRun(trigger)

	var err error
	if !c.Online() {
		err = ErrOffline
	} else {
		err = c.reconcile(ctx, run)
	}

	c.finishRun(run, err)

	switch {
	case err != nil:
		log.Printf("[SYNC] reconciliation (%s) failed: %v", trigger, err)
		if run.Mutations() > 0 || run.Failed > 0 {
			c.notify(LevelWarning, MsgLibraryPartialSync)
		}
	case run.Mutations() > 0:
		log.Printf("[SYNC] reconciliation (%s): %d added locally, %d updated locally, %d pushed, %d patched, %d covers, %d files",
			trigger, run.AddedLocal, run.UpdatedLocal, run.Pushed, run.PushedFields, run.CoverUploads, run.FileUploads)
		c.notify(LevelInfo, MsgLibrarySynced)
	default:
		log.Printf("[SYNC] reconciliation (%s): catalogs already in agreement", trigger)
	}
	return run, err
}

func (c *Coordinator) startRun(trigger entities.SyncTrigger) *entities.SyncRun {
	if c.runs != nil {
		run, err := c.runs.Start(trigger)
		if err == nil {
			return run
		}
		log.Printf("[SYNC] failed to record reconciliation start: %v", err)
	}
	now := time.Now()
	return &entities.SyncRun{Trigger: trigger, Status: entities.SyncStatusRunning, StartedAt: now, UpdatedAt: now}
}

func (c *Coordinator) finishRun(run *entities.SyncRun, err error) {
	if c.runs != nil && run.ID != 0 {
		if recErr := c.runs.Complete(run, err); recErr != nil {
			log.Printf("[SYNC] failed to record reconciliation result: %v", recErr)
		}
		return
	}
	now := time.Now()
	run.Status = entities.SyncStatusCompleted
	if err != nil {
		run.Status = entities.SyncStatusFailed
		run.Error = err.Error()
	}
	run.UpdatedAt = now
	run.CompletedAt = &now
}

func (c *Coordinator) reconcile(ctx context.Context, run *entities.SyncRun) error {
	remoteBooks, err := c.remote.ListBooks(ctx)
	if err != nil {
		c.demote(err)
		return fmt.Errorf("fetch remote catalog: %w", err)
	}
	localBooks, err := c.local.GetAll()
	if err != nil {
		return fmt.Errorf("read local catalog: %w", err)
	}
	run.RemoteBooks = len(remoteBooks)
	run.LocalBooks = len(localBooks)

	actions := PlanReconciliation(localBooks, remoteBooks)

	var errs []error
	remoteFailed := false
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if a.Remote() && remoteFailed {
			run.Failed++
			continue
		}
		if err := c.apply(ctx, a, run); err != nil {
			run.Failed++
			errs = append(errs, fmt.Errorf("%s %q: %w", a.Kind, a.Key.Title, err))
			log.Printf("[SYNC] %s for '%s' by %s failed: %v", a.Kind, a.Key.Title, a.Key.Author, err)
			if a.Remote() {
				remoteFailed = true
				c.demote(err)
			}
		}
	}
	if remoteFailed {
		errs = append(errs, errRemoteSkipped)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d reconciliation actions failed: %w", run.Failed, len(actions), errors.Join(errs...))
	}
	return nil
}

func (c *Coordinator) apply(ctx context.Context, a Action, run *entities.SyncRun) error {
	switch a.Kind {
	case ActionAddLocal:
		if err := c.local.Add(a.Book); err != nil {
			return err
		}
		run.AddedLocal++
	case ActionUpdateLocal:
		if err := c.local.Update(a.Book); err != nil {
			return err
		}
		run.UpdatedLocal++
	case ActionPush:
		created, err := c.remote.AddBook(ctx, ToRemote(a.Book))
		if err != nil {
			return err
		}
		run.Pushed++
		if a.Book.HasCover() {
			if err := c.remote.UploadCover(ctx, created.ID, a.Book.CoverBlob); err != nil {
				return err
			}
			run.CoverUploads++
			c.markCoverSynced(a.Book.ID, a.Book.CoverBlob)
		}
		if a.Book.HasFile() {
			if err := c.remote.UploadFile(ctx, created.ID, a.Book.FileBlob); err != nil {
				return err
			}
			run.FileUploads++
		}
	case ActionPatchRemote:
		if _, err := c.remote.UpdateBook(ctx, a.RemoteID, a.Patch); err != nil {
			return err
		}
		run.PushedFields++
	case ActionUploadCover:
		if err := c.remote.UploadCover(ctx, a.RemoteID, a.Data); err != nil {
			return err
		}
		run.CoverUploads++
		c.markCoverSynced(a.LocalID, a.Data)
	case ActionUploadFile:
		if err := c.remote.UploadFile(ctx, a.RemoteID, a.Data); err != nil {
			return err
		}
		run.FileUploads++
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	return nil
}

// markCoverSynced remembers an uploaded cover so a remote that omits covers
// from its listing is not sent the same one again. A failure only costs a
// repeated upload on the next run.
func (c *Coordinator) markCoverSynced(id uint, cover []byte) {
	if id == 0 {
		return
	}
	if err := c.local.MarkCoverSynced(id, entities.CoverHash(cover)); err != nil {
		log.Printf("[SYNC] failed to record uploaded cover of book %d: %v", id, err)
	}
}
