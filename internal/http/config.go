package http

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Catalog  Catalog
	Sessions Sessions
	Loans    Loans
	Database Pinger

	// Sync state and notices
	SyncState SyncState
	Notices   NoticeSource

	// Reconciliation runs inline when TaskClient is nil
	Reconciler Reconciler
	SyncRuns   RunHistory

	// Task queue client (optional)
	TaskClient TaskQueue

	// MaxUploadBytes bounds an imported file. Default: 256 MiB
	MaxUploadBytes int64

	// Application info
	Version string
}
