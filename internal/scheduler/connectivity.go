// Package scheduler runs periodic jobs. The connectivity monitor checks
// network reachability of the remote catalog host on a cron schedule and
// feeds the result into the sync coordinator as connectivity events.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/epubshelf/internal/catalogsync"
)

// DefaultSchedule checks connectivity every 30 seconds.
const DefaultSchedule = "@every 30s"

// Checker reports whether the network path to the remote catalog is up.
type Checker interface {
	Reachable(ctx context.Context) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) bool

func (f CheckerFunc) Reachable(ctx context.Context) bool { return f(ctx) }

// Connectivity receives connectivity events.
type Connectivity interface {
	SetOnline(ctx context.Context, online bool) catalogsync.State
}

// DialChecker opens a TCP connection to Address.
type DialChecker struct {
	Address string
	Timeout time.Duration
}

// NewDialChecker builds a checker for the host of baseURL, using the
// scheme's default port when none is given.
func NewDialChecker(baseURL string, timeout time.Duration) (*DialChecker, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("remote url %q has no host", baseURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DialChecker{Address: net.JoinHostPort(u.Hostname(), port), Timeout: timeout}, nil
}

// Reachable implements Checker.
func (d *DialChecker) Reachable(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ConnectivityMonitor polls a Checker and reports to a Connectivity sink.
type ConnectivityMonitor struct {
	checker  Checker
	target   Connectivity
	schedule string

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isChecking bool
	lastOnline *bool
	cancelFunc context.CancelFunc
}

// NewConnectivityMonitor creates a monitor. An empty schedule uses DefaultSchedule.
func NewConnectivityMonitor(checker Checker, target Connectivity, schedule string) *ConnectivityMonitor {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &ConnectivityMonitor{
		checker:  checker,
		target:   target,
		schedule: schedule,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
	}
}

// ValidateSchedule checks that schedule is a 5-field cron expression or a descriptor.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule '%s': %w", schedule, err)
	}
	return nil
}

// Start runs one check immediately and then on every schedule tick until
// Stop is called or ctx is cancelled.
func (m *ConnectivityMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return nil
	}

	var runCtx context.Context
	runCtx, m.cancelFunc = context.WithCancel(ctx)

	entryID, err := m.cron.AddFunc(m.schedule, func() {
		m.Check(runCtx)
	})
	if err != nil {
		m.cancelFunc()
		return fmt.Errorf("failed to schedule connectivity check: %w", err)
	}
	m.entryID = entryID

	m.cron.Start()
	m.isRunning = true
	log.Printf("[SYNC] connectivity monitor started with schedule '%s'", m.schedule)

	go m.Check(runCtx)
	go func() {
		<-runCtx.Done()
		m.Stop()
	}()
	return nil
}

// Stop stops the schedule and waits for a running check to finish.
func (m *ConnectivityMonitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	cancel := m.cancelFunc
	m.cancelFunc = nil
	entryID := m.entryID
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.cron.Remove(entryID)
	log.Printf("[SYNC] connectivity monitor stopped")
}

// Check runs one reachability check and forwards it. Overlapping checks
// are skipped. It returns the observed reachability.
func (m *ConnectivityMonitor) Check(ctx context.Context) bool {
	m.mu.Lock()
	if m.isChecking {
		online := m.lastOnline != nil && *m.lastOnline
		m.mu.Unlock()
		return online
	}
	m.isChecking = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isChecking = false
		m.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return false
	}

	online := m.checker.Reachable(ctx)

	m.mu.Lock()
	changed := m.lastOnline == nil || *m.lastOnline != online
	m.lastOnline = &online
	m.mu.Unlock()

	if changed {
		log.Printf("[SYNC] network reachable: %t", online)
	}
	m.target.SetOnline(ctx, online)
	return online
}

// IsRunning returns whether the schedule is active.
func (m *ConnectivityMonitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// LastOnline returns the last observed reachability, if any check ran.
func (m *ConnectivityMonitor) LastOnline() (online, known bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastOnline == nil {
		return false, false
	}
	return *m.lastOnline, true
}

// NextRun returns when the next check is due.
func (m *ConnectivityMonitor) NextRun() *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.isRunning {
		return nil
	}
	for _, entry := range m.cron.Entries() {
		if entry.ID == m.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}
