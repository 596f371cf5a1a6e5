package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/database"
	"github.com/mrlokans/epubshelf/internal/database/books"
	"github.com/mrlokans/epubshelf/internal/database/syncruns"
	"github.com/mrlokans/epubshelf/internal/epub"
	"github.com/mrlokans/epubshelf/internal/http"
	"github.com/mrlokans/epubshelf/internal/library"
	"github.com/mrlokans/epubshelf/internal/progress"
	"github.com/mrlokans/epubshelf/internal/remote"
	"github.com/mrlokans/epubshelf/internal/scheduler"
	"github.com/mrlokans/epubshelf/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// Local catalog
var _ catalogsync.LocalStore = (*books.Repository)(nil)
var _ library.BookStore = (*books.Repository)(nil)

// Reconciliation history
var _ catalogsync.RunRecorder = (*syncruns.Repository)(nil)
var _ http.RunHistory = (*syncruns.Repository)(nil)
var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// Remote Catalog
// =============================================================================

var _ catalogsync.RemoteCatalog = (*remote.Client)(nil)
var _ library.RemoteCatalog = (*remote.Client)(nil)

// =============================================================================
// Synchronization
// =============================================================================

var _ library.Writer = (*catalogsync.Coordinator)(nil)
var _ http.SyncState = (*catalogsync.Coordinator)(nil)
var _ http.Reconciler = (*catalogsync.Coordinator)(nil)
var _ tasks.Reconciler = (*catalogsync.Coordinator)(nil)
var _ scheduler.Connectivity = (*catalogsync.Coordinator)(nil)
var _ scheduler.Checker = (*scheduler.DialChecker)(nil)

var _ catalogsync.Notifier = catalogsync.LogNotifier{}
var _ catalogsync.Notifier = (*catalogsync.NoticeBuffer)(nil)
var _ http.NoticeSource = (*catalogsync.NoticeBuffer)(nil)

// =============================================================================
// Library and Reader
// =============================================================================

var _ http.Catalog = (*library.Library)(nil)
var _ tasks.Pusher = (*library.Library)(nil)
var _ http.Sessions = (*library.Reader)(nil)
var _ http.Loans = (*library.BlobLoans)(nil)
var _ epub.Sanitizer = (*epub.AllowListSanitizer)(nil)
var _ progress.Layout = (*progress.Snapshot)(nil)

// =============================================================================
// Background Tasks
// =============================================================================

var _ http.TaskQueue = (*tasks.Client)(nil)
