package epub

import (
	"context"
	"errors"
	"log"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/mrlokans/epubshelf/internal/archive"
)

const (
	// PlaceholderNotFound replaces a chapter whose file is absent from the archive.
	PlaceholderNotFound = "[File not found]"

	// PlaceholderError replaces a chapter that could not be read or is too short.
	PlaceholderError = "[Error extracting this chapter]"

	// minChapterLength is the shortest raw content, in characters, accepted as a real chapter.
	minChapterLength = 10
)

// Chapter is a content document after sanitization and image inlining.
type Chapter struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Stream serves the chapters of one opened archive on demand. Loaded
// chapters are cached for the life of the stream.
type Stream struct {
	archive   *archive.Archive
	pkg       *Package
	sanitizer Sanitizer

	mu     sync.Mutex
	cache  map[ChapterRef]Chapter
	closed bool
}

// NewStream creates a stream over an opened archive and its parsed package.
// The stream takes ownership of the archive and releases it on Close.
func NewStream(a *archive.Archive, pkg *Package, sanitizer Sanitizer) *Stream {
	if sanitizer == nil {
		sanitizer = NewDefaultSanitizer()
	}
	return &Stream{
		archive:   a,
		pkg:       pkg,
		sanitizer: sanitizer,
		cache:     make(map[ChapterRef]Chapter),
	}
}

// OpenStream opens data as an EPUB and returns a stream over its chapters.
// The archive is released if the package cannot be resolved.
func OpenStream(data []byte, sanitizer Sanitizer) (*Stream, error) {
	a, err := archive.Open(data)
	if err != nil {
		return nil, err
	}
	packagePath, err := LocatePackagePath(a)
	if err != nil {
		a.Close()
		return nil, err
	}
	pkg, err := ParsePackage(a, packagePath)
	if err != nil {
		a.Close()
		return nil, err
	}
	return NewStream(a, pkg, sanitizer), nil
}

// Package returns the parsed package document.
func (s *Stream) Package() *Package {
	return s.pkg
}

// Len returns the number of chapters.
func (s *Stream) Len() int {
	return len(s.pkg.Chapters)
}

// Window returns the chapter refs in [start, start+count), clamped to the chapter list.
func (s *Stream) Window(start, count int) []ChapterRef {
	refs := s.pkg.Chapters
	if start < 0 {
		start = 0
	}
	if count <= 0 || start >= len(refs) {
		return []ChapterRef{}
	}
	if count > len(refs)-start {
		count = len(refs) - start
	}
	out := make([]ChapterRef, count)
	copy(out, refs[start:start+count])
	return out
}

// GetChapter loads, sanitizes and caches one chapter. Failures never escape:
// they yield a placeholder chapter instead.
func (s *Stream) GetChapter(ref ChapterRef) Chapter {
	s.mu.Lock()
	if ch, ok := s.cache[ref]; ok {
		s.mu.Unlock()
		return ch
	}
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return Chapter{Name: ref.Name, Content: PlaceholderError}
	}

	ch := Chapter{Name: ref.Name, Content: s.extract(ref)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ch
	}
	if cached, ok := s.cache[ref]; ok {
		return cached
	}
	s.cache[ref] = ch
	return ch
}

// Load materializes the chapters in the given window concurrently and joins
// them in order. It fails only if ctx is cancelled or the stream was closed
// while loading, in which case the results must be discarded.
func (s *Stream) Load(ctx context.Context, start, count int) ([]Chapter, error) {
	refs := s.Window(start, count)
	chapters := make([]Chapter, len(refs))

	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chapters[i] = s.GetChapter(ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if s.Closed() {
		return nil, ErrStreamClosed
	}
	return chapters, nil
}

// Close releases the archive. Subsequent loads fail with ErrStreamClosed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cache = nil
	return s.archive.Close()
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) extract(ref ChapterRef) string {
	raw, err := s.readText(ref.Path)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			log.Printf("[EPUB] chapter file not found in archive: %s", ref.Path)
			return PlaceholderNotFound
		}
		log.Printf("[EPUB] error reading chapter %s: %v", ref.Path, err)
		return PlaceholderError
	}
	return s.render(ref, raw)
}

// readText decodes a content document using the encoding it declares.
func (s *Stream) readText(path string) (string, error) {
	data, err := s.archive.ReadFile(path)
	if err != nil {
		return "", err
	}
	return archive.DecodeText(data, DetectEncoding(data))
}

func (s *Stream) render(ref ChapterRef, raw string) string {
	if n := utf8.RuneCountInString(raw); n < minChapterLength {
		log.Printf("[EPUB] chapter %s is empty or too short (%d characters)", ref.Path, n)
		return PlaceholderError
	}

	sanitized := s.sanitizer.Sanitize(raw)
	embedded, err := EmbedImages(sanitized, s.archive, s.pkg.Path, ref.Path)
	if err != nil {
		log.Printf("[EPUB] error embedding images for %s: %v", ref.Path, err)
		return sanitized
	}
	return embedded
}
