package http

import (
	"context"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/database/books"
	"github.com/mrlokans/epubshelf/internal/entities"
	"github.com/mrlokans/epubshelf/internal/library"
)

// Catalog is implemented by library.Library.
type Catalog interface {
	Import(ctx context.Context, data []byte) (*library.ImportResult, error)
	List() ([]books.Summary, error)
	Get(id uint) (*entities.Book, error)
	UpdateAttributes(ctx context.Context, id uint, attrs books.Attributes) (*entities.Book, catalogsync.WriteStatus, error)
	Delete(ctx context.Context, id uint) (catalogsync.WriteStatus, error)
	LendCover(id uint) (*library.Loan, error)
}

// Sessions is implemented by library.Reader.
type Sessions interface {
	Open(ctx context.Context, id uint) (*library.Session, error)
	Session(id string) (*library.Session, error)
}

// Loans is implemented by library.BlobLoans.
type Loans interface {
	Get(token string) (*library.Loan, bool)
	Revoke(token string) bool
}

// Pinger is implemented by database.Database.
type Pinger interface {
	Ping() error
}

// SyncState is implemented by catalogsync.Coordinator.
type SyncState interface {
	State() catalogsync.State
	Online() bool
	RemoteAvailable() bool
}

// NoticeSource is implemented by catalogsync.NoticeBuffer.
type NoticeSource interface {
	Recent(n int) []catalogsync.Notice
}

// Reconciler is implemented by catalogsync.Coordinator.
type Reconciler interface {
	ReconcileCatalogs(ctx context.Context, trigger entities.SyncTrigger) (*entities.SyncRun, error)
}

// RunHistory is implemented by syncruns.Repository.
type RunHistory interface {
	List(limit int) ([]entities.SyncRun, error)
}

// TaskQueue is implemented by tasks.Client.
type TaskQueue interface {
	EnqueueReconcile(trigger entities.SyncTrigger) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}
