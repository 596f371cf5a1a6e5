// Package catalogsync keeps the local catalog and the remote catalog in
// agreement. The Coordinator tracks connectivity and remote health, mediates
// every write so the local store is always updated, and reconciles both
// catalogs whenever the remote becomes reachable again.
package catalogsync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/epubshelf/internal/entities"
	"github.com/mrlokans/epubshelf/internal/remote"
)

var ErrOffline = errors.New("catalog sync: offline")

type State string

const (
	StateOnlineSynced   State = "ONLINE_SYNCED"
	StateOnlineDegraded State = "ONLINE_DEGRADED"
	StateOffline        State = "OFFLINE"
)

// LocalStore is the durable on-device catalog.
type LocalStore interface {
	GetAll() ([]entities.Book, error)
	Add(book *entities.Book) error
	Update(book *entities.Book) error
	MarkCoverSynced(id uint, hash string) error
}

// RemoteCatalog is the subset of the remote API used for reconciliation.
type RemoteCatalog interface {
	Status(ctx context.Context) error
	ListBooks(ctx context.Context) ([]remote.Book, error)
	AddBook(ctx context.Context, book remote.Book) (*remote.Book, error)
	UpdateBook(ctx context.Context, id uint, patch remote.Patch) (*remote.Book, error)
	UploadCover(ctx context.Context, id uint, cover []byte) error
	UploadFile(ctx context.Context, id uint, file []byte) error
}

// RunRecorder persists reconciliation reports.
type RunRecorder interface {
	Start(trigger entities.SyncTrigger) (*entities.SyncRun, error)
	Complete(run *entities.SyncRun, runErr error) error
}

// LocalOp and RemoteOp are the two halves of a coordinated write.
type (
	LocalOp  func() error
	RemoteOp func(ctx context.Context) error
)

// Options configures a Coordinator.
type Options struct {
	Notifier Notifier
	Runs     RunRecorder
	// OnSynced runs on every transition into StateOnlineSynced. When nil the
	// coordinator reconciles inline.
	OnSynced func(ctx context.Context)
}

// Coordinator is the offline-first sync state machine.
type Coordinator struct {
	local    LocalStore
	remote   RemoteCatalog
	notifier Notifier
	runs     RunRecorder
	onSynced func(ctx context.Context)

	mu              sync.Mutex
	online          bool
	remoteAvailable bool

	reconcileMu sync.Mutex
}

// New creates a coordinator. It starts offline until the first connectivity
// event arrives through SetOnline.
func New(local LocalStore, rc RemoteCatalog, opts Options) *Coordinator {
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	return &Coordinator{
		local:    local,
		remote:   rc,
		notifier: opts.Notifier,
		runs:     opts.Runs,
		onSynced: opts.OnSynced,
	}
}

// SetOnSynced replaces the hook run on transitions into StateOnlineSynced.
func (c *Coordinator) SetOnSynced(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSynced = fn
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() State {
	switch {
	case !c.online:
		return StateOffline
	case c.remoteAvailable:
		return StateOnlineSynced
	default:
		return StateOnlineDegraded
	}
}

// Online reports the last known network reachability.
func (c *Coordinator) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// RemoteAvailable reports the cached result of the last health check.
func (c *Coordinator) RemoteAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAvailable
}

// SetOnline feeds a connectivity event. Going down moves to StateOffline;
// coming up (or staying up) re-checks the remote catalog.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) State {
	c.mu.Lock()
	prev := c.stateLocked()
	c.online = online
	c.mu.Unlock()

	if !online {
		if prev != StateOffline {
			log.Printf("[SYNC] connectivity lost, switching to offline mode")
			c.notify(LevelWarning, MsgOffline)
		}
		return StateOffline
	}

	if prev == StateOffline {
		log.Printf("[SYNC] connectivity restored, checking remote catalog")
	}
	c.checkRemote(ctx, false, false, prev)
	return c.State()
}

// CheckRemote re-checks remote health and caches the result. Transitions
// produce a notice unless silent. A transition into StateOnlineSynced triggers
// reconciliation. While offline it returns false without network I/O.
func (c *Coordinator) CheckRemote(ctx context.Context, silent bool) bool {
	return c.checkRemote(ctx, silent, false, c.State())
}

// checkRemote refreshes remote health. With detach set, reconciliation triggered
// by the transition runs in the background on a context that outlives ctx.
func (c *Coordinator) checkRemote(ctx context.Context, silent, detach bool, prev State) bool {
	c.mu.Lock()
	online := c.online
	wasAvailable := c.remoteAvailable
	c.mu.Unlock()

	if !online {
		return false
	}

	err := c.remote.Status(ctx)
	available := err == nil

	c.mu.Lock()
	c.remoteAvailable = available
	now := c.stateLocked()
	hook := c.onSynced
	c.mu.Unlock()

	if available != wasAvailable {
		if available {
			log.Printf("[SYNC] remote catalog reachable")
			if !silent {
				c.notify(LevelInfo, MsgBackendReconnected)
			}
		} else {
			log.Printf("[SYNC] remote catalog unavailable: %v", err)
			if !silent {
				c.notify(LevelWarning, MsgBackendUnavailable)
			}
		}
	}

	if now == StateOnlineSynced && prev != StateOnlineSynced {
		if detach {
			go c.enteredSynced(context.WithoutCancel(ctx), hook)
		} else {
			c.enteredSynced(ctx, hook)
		}
	}
	return available
}

func (c *Coordinator) enteredSynced(ctx context.Context, hook func(ctx context.Context)) {
	if hook != nil {
		hook(ctx)
		return
	}
	if _, err := c.ReconcileCatalogs(ctx, entities.SyncTriggerReconnect); err != nil {
		log.Printf("[SYNC] reconciliation after reconnect failed: %v", err)
	}
}

// demote marks the remote unavailable after a failed call.
func (c *Coordinator) demote(err error) {
	c.mu.Lock()
	was := c.remoteAvailable
	c.remoteAvailable = false
	c.mu.Unlock()
	if was {
		log.Printf("[SYNC] remote call failed, continuing in degraded mode: %v", err)
	}
}

// PerformWrite runs a write against both catalogs. When online the remote is
// re-checked and, if available, remoteOp runs first. localOp always runs. One
// consolidated notice describes the outcome unless silent. A nil remoteOp
// means the write has no remote half. Reconciliation set off by the re-check
// runs in the background and does not delay the write.
func (c *Coordinator) PerformWrite(ctx context.Context, localOp LocalOp, remoteOp RemoteOp, silent bool) WriteStatus {
	var st WriteStatus

	st.Online = c.Online()
	if st.Online {
		st.RemoteReachable = c.checkRemote(ctx, true, true, c.State())
		if st.RemoteReachable {
			if remoteOp == nil {
				st.Remote = true
			} else {
				st.RemoteAttempted = true
				if err := remoteOp(ctx); err != nil {
					st.RemoteErr = err
					c.demote(err)
				} else {
					st.Remote = true
				}
			}
		}
	}

	if err := localOp(); err != nil {
		st.LocalErr = err
		log.Printf("[SYNC] local write failed: %v", err)
	} else {
		st.Local = true
	}

	if !silent {
		n := st.Outcome()
		c.notify(n.Level, n.Message)
	}
	return st
}

func (c *Coordinator) notify(level Level, message string) {
	c.notifier.Notify(Notice{Level: level, Message: message, Time: time.Now()})
}
