// Package progress maps scroll position inside a window of rendered chapters
// to a global reading progress value and back.
//
// Global progress is chapterIndex + fraction, where fraction is how far the
// bottom of the viewport has moved through that chapter. The UI layer
// supplies geometry through the Layout interface, so the math does not
// depend on a real layout engine.
package progress

import (
	"log"
	"math"
	"sync"
	"time"
)

// DefaultDebounce coalesces scroll events into one computation per second.
const DefaultDebounce = time.Second

// Block is the rendered geometry of one materialized chapter, in pixels
// relative to the top of the scroll container.
type Block struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// Layout is implemented by the rendering surface showing the chapter window.
// Blocks are returned in window order: Blocks()[0] is chapter baseIndex.
type Layout interface {
	Blocks() []Block
	Viewport() (scrollTop, clientHeight float64)
	ScrollTo(top float64)
}

// Persister stores a new progress value.
type Persister func(progress float64) error

// ScheduleFunc runs f after d and returns a function that cancels it.
type ScheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Options configures a Tracker.
type Options struct {
	// BaseIndex is the global index of the first materialized chapter.
	BaseIndex int
	// Stored is the previously persisted progress, nil if none.
	Stored *float64
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Schedule defaults to time.AfterFunc.
	Schedule ScheduleFunc
}

// Tracker observes scroll state for one reader session.
type Tracker struct {
	mu        sync.Mutex
	layout    Layout
	persist   Persister
	debounce  time.Duration
	schedule  ScheduleFunc
	baseIndex int
	progress  float64
	stored    *float64
	resumed   bool
	pending   func() bool
	stopped   bool
}

// NewTracker creates a tracker over layout that writes progress through persist.
func NewTracker(layout Layout, persist Persister, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Schedule == nil {
		opts.Schedule = afterFunc
	}
	t := &Tracker{
		layout:    layout,
		persist:   persist,
		debounce:  opts.Debounce,
		schedule:  opts.Schedule,
		baseIndex: opts.BaseIndex,
		progress:  float64(opts.BaseIndex),
	}
	if opts.Stored != nil {
		v := *opts.Stored
		t.stored = &v
		if v > t.progress {
			t.progress = v
		}
	}
	return t
}

// SetLayout swaps the rendering surface, e.g. after a new geometry snapshot.
func (t *Tracker) SetLayout(layout Layout) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.layout = layout
}

// SetBaseIndex records the global index of the first materialized chapter.
func (t *Tracker) SetBaseIndex(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.baseIndex = i
}

// BaseIndex returns the global index of the first materialized chapter.
func (t *Tracker) BaseIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baseIndex
}

// Progress returns the last observed global progress.
func (t *Tracker) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Stored returns the last persisted progress, if any.
func (t *Tracker) Stored() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stored == nil {
		return 0, false
	}
	return *t.stored, true
}

// ScrollToProgress scrolls the layout so that the viewport bottom sits at
// frac(target) of chapter floor(target). It reports false, without
// scrolling, when that chapter is not in the materialized window.
func (t *Tracker) ScrollToProgress(target float64) bool {
	t.mu.Lock()
	layout, base := t.layout, t.baseIndex
	t.mu.Unlock()

	if layout == nil || target < 0 || math.IsNaN(target) {
		return false
	}

	chapter := int(math.Floor(target))
	fraction := target - float64(chapter)
	local := chapter - base

	blocks := layout.Blocks()
	if local < 0 || local >= len(blocks) {
		return false
	}

	_, clientHeight := layout.Viewport()
	block := blocks[local]
	top := block.Top + block.Height*fraction - clientHeight
	if top < 0 {
		top = 0
	}
	layout.ScrollTo(top)
	return true
}

// Resume scrolls to target the first time a window becomes visible and is a
// no-op afterwards. It reports whether a scroll happened.
func (t *Tracker) Resume(target float64) bool {
	t.mu.Lock()
	if t.resumed {
		t.mu.Unlock()
		return false
	}
	t.resumed = true
	t.mu.Unlock()

	return t.ScrollToProgress(target)
}

// Compute derives global progress from the current layout. It scans blocks
// from last to first for the last one whose top is at or above the
// viewport bottom. It reports false when no block qualifies.
func (t *Tracker) Compute() (float64, bool) {
	t.mu.Lock()
	layout, base := t.layout, t.baseIndex
	t.mu.Unlock()

	if layout == nil {
		return 0, false
	}
	return compute(layout.Blocks(), layout, base)
}

func compute(blocks []Block, layout Layout, base int) (float64, bool) {
	scrollTop, clientHeight := layout.Viewport()
	visibleBottom := scrollTop + clientHeight

	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if b.Top > visibleBottom {
			continue
		}
		if b.Height <= 0 {
			return float64(base+i) + 1, true
		}
		inChapter := math.Max(0, math.Min(visibleBottom-b.Top, b.Height))
		return float64(base+i) + inChapter/b.Height, true
	}
	return 0, false
}

// ObserveScroll handles one scroll event. The computation runs after the
// debounce delay; events arriving while one is pending are dropped.
func (t *Tracker) ObserveScroll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.pending != nil {
		return
	}
	t.pending = t.schedule(t.debounce, t.fire)
}

func (t *Tracker) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.mu.Unlock()

	p, ok := t.Compute()
	if !ok {
		return
	}

	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()

	if _, err := t.Record(p); err != nil {
		log.Printf("[READER] failed to persist progress %.4f: %v", p, err)
	}
}

// Record persists p if nothing was stored yet or p exceeds the stored value,
// so passive scrolling never moves progress backwards.
func (t *Tracker) Record(p float64) (bool, error) {
	t.mu.Lock()
	if t.stored != nil && p <= *t.stored {
		t.mu.Unlock()
		return false, nil
	}
	persist := t.persist
	t.mu.Unlock()

	if persist != nil {
		if err := persist(p); err != nil {
			return false, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stored == nil || p > *t.stored {
		v := p
		t.stored = &v
	}
	return true, nil
}

// Pending reports whether a debounced computation is scheduled.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Stop cancels any pending computation. The tracker ignores later events.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.pending != nil {
		t.pending()
		t.pending = nil
	}
}

// Snapshot is a static Layout built from geometry reported by a client.
type Snapshot struct {
	Chapters     []Block `json:"chapters"`
	ScrollTop    float64 `json:"scrollTop"`
	ClientHeight float64 `json:"clientHeight"`
}

// Blocks implements Layout.
func (s *Snapshot) Blocks() []Block { return s.Chapters }

// Viewport implements Layout.
func (s *Snapshot) Viewport() (float64, float64) { return s.ScrollTop, s.ClientHeight }

// ScrollTo implements Layout.
func (s *Snapshot) ScrollTo(top float64) { s.ScrollTop = top }
