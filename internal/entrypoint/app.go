package entrypoint

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/config"
	"github.com/mrlokans/epubshelf/internal/database"
	"github.com/mrlokans/epubshelf/internal/database/books"
	"github.com/mrlokans/epubshelf/internal/database/syncruns"
	"github.com/mrlokans/epubshelf/internal/entities"
	http_controllers "github.com/mrlokans/epubshelf/internal/http"
	"github.com/mrlokans/epubshelf/internal/library"
	"github.com/mrlokans/epubshelf/internal/remote"
	"github.com/mrlokans/epubshelf/internal/scheduler"
	"github.com/mrlokans/epubshelf/internal/tasks"
)

const loanSweepInterval = time.Minute

// Options selects the background machinery an App starts with.
type Options struct {
	// Tasks enables the backlite queue when the config also enables it.
	Tasks bool
	// Monitor enables the periodic connectivity monitor.
	Monitor bool
	// QuietDB silences gorm logging.
	QuietDB bool
}

// App holds the wired components shared by the server and CLI commands.
type App struct {
	Config      *config.Config
	DB          *database.Database
	Remote      *remote.Client
	Books       *books.Repository
	Runs        *syncruns.Repository
	Notices     *catalogsync.NoticeBuffer
	Coordinator *catalogsync.Coordinator
	Loans       *library.BlobLoans
	Library     *library.Library
	Reader      *library.Reader
	Checker     scheduler.Checker

	// Optional
	Tasks   *tasks.Client
	Monitor *scheduler.ConnectivityMonitor

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp opens the local catalog and wires every component.
func NewApp(cfg *config.Config, opts Options) (*App, error) {
	var (
		db  *database.Database
		err error
	)
	if opts.QuietDB {
		db, err = database.NewQuietDatabase(cfg.Database.Path)
	} else {
		db, err = database.NewDatabase(cfg.Database.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	checker, err := scheduler.NewDialChecker(cfg.Remote.BaseURL, cfg.Connectivity.DialTimeout)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		DB:      db,
		Checker: checker,
		Remote: remote.NewClient(remote.Config{
			BaseURL:    cfg.Remote.BaseURL,
			Timeout:    cfg.Remote.Timeout,
			RetryCount: cfg.Remote.RetryCount,
		}),
		Books:   books.NewRepository(db.DB),
		Runs:    syncruns.NewRepository(db.DB),
		Notices: catalogsync.NewNoticeBuffer(100),
		Loans:   library.NewBlobLoans(cfg.Reader.LoanTTL),
	}
	a.Coordinator = catalogsync.New(a.Books, a.Remote, catalogsync.Options{
		Notifier: catalogsync.MultiNotifier{catalogsync.LogNotifier{}, a.Notices},
		Runs:     a.Runs,
	})
	a.Library = library.New(a.Books, a.Remote, a.Coordinator, a.Loans)
	a.Reader = library.NewReader(a.Library, library.ReaderOptions{
		ChapterWindow: cfg.Reader.ChapterWindow,
		Debounce:      cfg.Reader.ScrollDebounce,
	})

	if opts.Tasks && cfg.Tasks.Enabled {
		if err := a.initTasks(); err != nil {
			db.Close()
			return nil, err
		}
	}
	if opts.Monitor && cfg.Connectivity.Enabled {
		if err := scheduler.ValidateSchedule(cfg.Connectivity.Schedule); err != nil {
			a.Close()
			return nil, err
		}
		a.Monitor = scheduler.NewConnectivityMonitor(a.Checker, a.Coordinator, cfg.Connectivity.Schedule)
	}
	return a, nil
}

func (a *App) initTasks() error {
	client, err := tasks.NewClient(a.Config.Database.Path, tasks.Config{
		Workers:         a.Config.Tasks.Workers,
		ReleaseAfter:    a.Config.Tasks.ReleaseAfter,
		CleanupInterval: a.Config.Tasks.CleanupInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize task queue: %w", err)
	}
	client.Register(
		tasks.NewReconcileCatalogsQueue(a.Coordinator),
		tasks.NewPushBookQueue(a.Library),
	)
	a.Tasks = client

	a.Coordinator.SetOnSynced(func(ctx context.Context) {
		if _, err := client.EnqueueReconcile(entities.SyncTriggerReconnect); err != nil {
			log.Printf("[TASK ERROR] failed to enqueue reconciliation, running inline: %v", err)
			if _, err := a.Coordinator.ReconcileCatalogs(ctx, entities.SyncTriggerReconnect); err != nil {
				log.Printf("[SYNC] reconciliation after reconnect failed: %v", err)
			}
		}
	})
	a.Library.SetDeferredPush(func(_ context.Context, id uint) {
		if _, err := client.EnqueuePush(id); err != nil {
			log.Printf("[TASK ERROR] failed to enqueue push of book %d: %v", id, err)
		}
	})
	return nil
}

// Start launches task workers, the connectivity monitor and the loan sweeper.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}
	ctx, a.cancel = context.WithCancel(ctx)

	if a.Tasks != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Tasks.Start(ctx)
		}()
	}
	if a.Monitor != nil {
		if err := a.Monitor.Start(ctx); err != nil {
			return err
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(loanSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := a.Loans.Sweep(); n > 0 {
					log.Printf("[READER] released %d expired blob loans", n)
				}
			}
		}
	}()
	return nil
}

// Connect runs one reachability check and feeds it to the coordinator.
func (a *App) Connect(ctx context.Context) catalogsync.State {
	if a.Monitor != nil {
		a.Monitor.Check(ctx)
		return a.Coordinator.State()
	}
	return a.Coordinator.SetOnline(ctx, a.Checker.Reachable(ctx))
}

// RouterConfig builds the HTTP router dependencies.
func (a *App) RouterConfig(version string) http_controllers.RouterConfig {
	cfg := http_controllers.RouterConfig{
		Catalog:    a.Library,
		Sessions:   a.Reader,
		Loans:      a.Loans,
		Database:   a.DB,
		SyncState:  a.Coordinator,
		Notices:    a.Notices,
		Reconciler: a.Coordinator,
		SyncRuns:   a.Runs,
		Version:    version,
	}
	if a.Tasks != nil {
		cfg.TaskClient = a.Tasks
	}
	return cfg
}

// Shutdown stops background work, waiting for running tasks until ctx expires.
func (a *App) Shutdown(ctx context.Context) {
	a.Reader.Close()
	if a.Monitor != nil {
		a.Monitor.Stop()
	}
	if a.Tasks != nil {
		a.Tasks.Stop(ctx)
	}

	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}

// Close releases the databases.
func (a *App) Close() error {
	var firstErr error
	if a.Tasks != nil {
		if err := a.Tasks.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
