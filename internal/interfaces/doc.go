// Package interfaces documents the core abstractions used throughout the application.
//
// This package consolidates interface documentation to help contributors find
// extension points and see which concrete types implement them.
//
// # Interface Categories
//
// ## Data Access Interfaces
//
//   - catalogsync.LocalStore: Durable local catalog used by reconciliation (internal/catalogsync/coordinator.go)
//   - library.BookStore: Local catalog used by library writes (internal/library/library.go)
//   - catalogsync.RunRecorder: Reconciliation history (internal/catalogsync/coordinator.go)
//
// ## Remote Catalog Interfaces
//
//   - catalogsync.RemoteCatalog: List/add/update/upload calls used by reconciliation
//   - library.RemoteCatalog: Push/resolve/update/delete calls used by library writes
//
// Both are implemented by remote.Client, a resty-based HTTP client.
//
// ## Synchronization Interfaces
//
//   - library.Writer: Coordinated write across both catalogs (catalogsync.Coordinator)
//   - scheduler.Connectivity: Receives connectivity events (catalogsync.Coordinator)
//   - scheduler.Checker: Network reachability check (scheduler.DialChecker)
//   - catalogsync.Notifier: User-facing notices (LogNotifier, NoticeBuffer, MultiNotifier)
//
// ## Reader Interfaces
//
//   - epub.Sanitizer: Chapter HTML sanitization (internal/epub/sanitize.go)
//   - progress.Layout: Geometry of the materialized chapter window (internal/progress/tracker.go)
//
// ## HTTP Interfaces
//
// The HTTP layer depends only on the interfaces in internal/http/stores.go
// (Catalog, Sessions, Loans, SyncState, NoticeSource, Reconciler, RunHistory,
// TaskQueue, Pinger), so controllers can be tested against fakes.
//
// # Adding a New Remote Operation
//
//  1. Add the call to remote.Client:
//
//     func (c *Client) Archive(ctx context.Context, id uint) error
//
//  2. Extend library.RemoteCatalog and run it through the Writer so the
//     local half always executes:
//
//     st := l.writer.PerformWrite(ctx, localOp, remoteOp, false)
//
//  3. Expose it through http.Catalog and register the route in router.go
//
// # Adding a New Background Task
//
//  1. Define the task in internal/tasks/ with a Config() returning a
//     backlite.QueueConfig, plus a processor and NewXQueue constructor
//  2. Register the queue in entrypoint.App.initTasks
//  3. Add an EnqueueX helper on tasks.Client
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// This pattern is used throughout the codebase. See checks.go for examples.
package interfaces
