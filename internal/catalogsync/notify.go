package catalogsync

import (
	"log"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// User-facing messages.
const (
	MsgSaved              = "Operation successful"
	MsgSavedOffline       = "Saved locally, offline"
	MsgSavedBackendError  = "Saved locally, backend error"
	MsgSavedBackendDown   = "Saved locally, backend unavailable"
	MsgFailed             = "Operation failed locally, please retry"
	MsgOffline            = "Offline mode"
	MsgBackendReconnected = "Backend reconnected"
	MsgBackendUnavailable = "Backend unavailable, falling back to offline mode"
	MsgLibrarySynced      = "Library synchronized"
	MsgLibraryPartialSync = "Library synchronization incomplete"
)

// Notice is one message for the user.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier delivers notices to whatever surface shows them.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notice) {
	log.Printf("[SYNC] notice (%s): %s", n.Level, n.Message)
}

// NoticeBuffer keeps the most recent notices in memory.
type NoticeBuffer struct {
	mu      sync.Mutex
	size    int
	notices []Notice
}

// NewNoticeBuffer keeps up to size notices.
func NewNoticeBuffer(size int) *NoticeBuffer {
	if size <= 0 {
		size = 50
	}
	return &NoticeBuffer{size: size}
}

func (b *NoticeBuffer) Notify(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	if over := len(b.notices) - b.size; over > 0 {
		b.notices = append([]Notice(nil), b.notices[over:]...)
	}
}

// Recent returns up to n notices, newest last. n <= 0 returns all.
func (b *NoticeBuffer) Recent(n int) []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0
	if n > 0 && len(b.notices) > n {
		start = len(b.notices) - n
	}
	return append([]Notice(nil), b.notices[start:]...)
}

// MultiNotifier fans a notice out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(n Notice) {
	for _, notifier := range m {
		notifier.Notify(n)
	}
}
