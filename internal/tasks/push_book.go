package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/epubshelf/internal/database/books"
)

// PushBookTask retries sending one local book to the remote catalog.
type PushBookTask struct {
	BookID uint `json:"book_id"`
}

// Config returns the queue configuration for push tasks.
func (t PushBookTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "push_book",
		MaxAttempts: 5,
		Backoff:     time.Minute,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// Pusher is implemented by library.Library.
type Pusher interface {
	PushBook(ctx context.Context, id uint) error
}

// PushBookProcessor creates a processor function for PushBookTask. A book
// deleted before the task runs completes the task without error.
func PushBookProcessor(p Pusher) backlite.QueueProcessor[PushBookTask] {
	return func(ctx context.Context, task PushBookTask) error {
		if p == nil {
			return fmt.Errorf("pusher not configured")
		}

		err := p.PushBook(ctx, task.BookID)
		if errors.Is(err, books.ErrNotFound) {
			log.Printf("[TASK] Book %d no longer exists, nothing to push", task.BookID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("push book %d: %w", task.BookID, err)
		}
		return nil
	}
}

// NewPushBookQueue creates a backlite queue for push tasks.
func NewPushBookQueue(p Pusher) backlite.Queue {
	return backlite.NewQueue(PushBookProcessor(p))
}
