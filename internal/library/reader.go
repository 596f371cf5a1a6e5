package library

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrlokans/epubshelf/internal/epub"
	"github.com/mrlokans/epubshelf/internal/progress"
)

var (
	ErrStaleSession    = errors.New("reader session is no longer current")
	ErrSessionNotFound = errors.New("reader session not found")
)

// DefaultChapterWindow is how many chapters one load materializes.
const DefaultChapterWindow = 1

// replacedHistory bounds how many superseded session ids are remembered.
const replacedHistory = 8

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	ChapterWindow int
	Debounce      time.Duration
	Sanitizer     epub.Sanitizer
}

// Reader owns at most one open reading session. Opening a book closes the
// session that was open before it.
type Reader struct {
	lib       *Library
	window    int
	debounce  time.Duration
	sanitizer epub.Sanitizer

	mu       sync.Mutex
	current  *Session
	replaced []string
}

// NewReader creates a reader over lib.
func NewReader(lib *Library, opts ReaderOptions) *Reader {
	if opts.ChapterWindow <= 0 {
		opts.ChapterWindow = DefaultChapterWindow
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = epub.NewDefaultSanitizer()
	}
	return &Reader{
		lib:       lib,
		window:    opts.ChapterWindow,
		debounce:  opts.Debounce,
		sanitizer: opts.Sanitizer,
	}
}

// Open starts a session for book id positioned at its stored progress.
func (r *Reader) Open(ctx context.Context, id uint) (*Session, error) {
	book, err := r.lib.Get(id)
	if err != nil {
		return nil, err
	}
	if !book.HasFile() {
		return nil, fmt.Errorf("book %d: %w", id, ErrNoFile)
	}

	stream, err := epub.OpenStream(book.FileBlob, r.sanitizer)
	if err != nil {
		return nil, fmt.Errorf("open '%s': %w", book.Title, err)
	}

	var resume float64
	if book.Progress != nil {
		resume = *book.Progress
	}
	base := startChapter(resume, stream.Len())

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     uuid.NewString(),
		BookID: id,
		Title:  book.Title,
		reader: r,
		stream: stream,
		resume: resume,
		base:   base,
		end:    base,
		ctx:    ctx,
		cancel: cancel,
	}
	s.tracker = progress.NewTracker(nil, func(p float64) error {
		return r.lib.SaveProgress(context.Background(), id, p)
	}, progress.Options{
		BaseIndex: base,
		Stored:    book.Progress,
		Debounce:  r.debounce,
	})

	r.mu.Lock()
	previous := r.current
	r.current = s
	if previous != nil {
		r.replaced = append(r.replaced, previous.ID)
		if len(r.replaced) > replacedHistory {
			r.replaced = r.replaced[len(r.replaced)-replacedHistory:]
		}
	}
	r.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	log.Printf("[READER] opened '%s' at %.4f (%d chapters)", book.Title, resume, stream.Len())
	return s, nil
}

// Session returns the current session if its id matches. A session
// superseded by a later Open yields ErrStaleSession.
func (r *Reader) Session(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.ID == id {
		return r.current, nil
	}
	for _, old := range r.replaced {
		if old == id {
			return nil, ErrStaleSession
		}
	}
	return nil, ErrSessionNotFound
}

// Current returns the open session, or nil.
func (r *Reader) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Close closes the open session, if any.
func (r *Reader) Close() {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (r *Reader) isCurrent(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current == s
}

func (r *Reader) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == s {
		r.current = nil
	}
}

func startChapter(resume float64, chapters int) int {
	if chapters == 0 || resume <= 0 || math.IsNaN(resume) {
		return 0
	}
	i := int(math.Floor(resume))
	if i >= chapters {
		i = chapters - 1
	}
	return i
}

// Session is one open book: its chapter stream, the materialized window
// [base, end) and the progress tracker.
type Session struct {
	ID     string `json:"id"`
	BookID uint   `json:"book_id"`
	Title  string `json:"title"`

	reader  *Reader
	stream  *epub.Stream
	tracker *progress.Tracker
	resume  float64

	mu        sync.Mutex
	base, end int
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
}

// ChapterCount returns the number of chapters in the spine.
func (s *Session) ChapterCount() int {
	return s.stream.Len()
}

// ResumeProgress is the progress the session was opened at.
func (s *Session) ResumeProgress() float64 {
	return s.resume
}

// Window returns the materialized chapter range [base, end).
func (s *Session) Window() (base, end int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base, s.end
}

// Progress returns the last observed progress.
func (s *Session) Progress() float64 {
	return s.tracker.Progress()
}

// Chapters loads chapters [start, start+count). Results computed for a
// session that was closed or replaced meanwhile are discarded.
func (s *Session) Chapters(ctx context.Context, start, count int) ([]epub.Chapter, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	ctx, stop := mergeCancel(ctx, s.ctx)
	defer stop()

	chapters, err := s.stream.Load(ctx, start, count)
	if err != nil {
		if errors.Is(err, epub.ErrStreamClosed) || s.ctx.Err() != nil {
			return nil, ErrStaleSession
		}
		return nil, err
	}
	if err := s.guard(); err != nil {
		return nil, err
	}
	return chapters, nil
}

// Initial loads the first window starting at the resume chapter.
func (s *Session) Initial(ctx context.Context) ([]epub.Chapter, error) {
	s.mu.Lock()
	base := s.base
	s.mu.Unlock()

	chapters, err := s.Chapters(ctx, base, s.reader.window)
	if err != nil {
		return nil, err
	}
	s.extend(base, len(chapters))
	return chapters, nil
}

// LoadMore appends the next window after the materialized chapters. It
// returns an empty slice once the end of the book is reached.
func (s *Session) LoadMore(ctx context.Context) ([]epub.Chapter, error) {
	s.mu.Lock()
	end := s.end
	s.mu.Unlock()

	chapters, err := s.Chapters(ctx, end, s.reader.window)
	if err != nil {
		return nil, err
	}
	s.extend(end, len(chapters))
	return chapters, nil
}

func (s *Session) extend(from, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from == s.end && from+n > s.end {
		s.end = from + n
	}
}

// Observe feeds a geometry snapshot to the tracker. It returns the progress
// computed from it right away; persistence happens after the debounce.
func (s *Session) Observe(snap *progress.Snapshot) (float64, bool, error) {
	if err := s.guard(); err != nil {
		return 0, false, err
	}
	s.tracker.SetLayout(snap)
	p, ok := s.tracker.Compute()
	s.tracker.ObserveScroll()
	return p, ok, nil
}

// ResumeScroll positions snap at the resume progress the first time it is
// called. It returns the scrollTop to apply and whether a scroll happened.
func (s *Session) ResumeScroll(snap *progress.Snapshot) (float64, bool, error) {
	if err := s.guard(); err != nil {
		return 0, false, err
	}
	s.tracker.SetLayout(snap)
	ok := s.tracker.Resume(s.resume)
	return snap.ScrollTop, ok, nil
}

// Close releases the stream and cancels in-flight loads. A pending
// debounced progress write is dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.tracker.Stop()
	s.reader.release(s)
	return s.stream.Close()
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) guard() error {
	if s.Closed() || !s.reader.isCurrent(s) {
		return ErrStaleSession
	}
	return nil
}

// mergeCancel returns a context cancelled when either parent is done.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
