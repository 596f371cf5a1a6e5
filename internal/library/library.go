// Package library holds the application services on top of the catalog:
// importing EPUB files, attribute and progress writes, deletion, reader
// sessions and revocable blob loans. Every write goes through the sync
// coordinator so local and remote stay consistent.
package library

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mrlokans/epubshelf/internal/archive"
	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/database/books"
	"github.com/mrlokans/epubshelf/internal/entities"
	"github.com/mrlokans/epubshelf/internal/epub"
	"github.com/mrlokans/epubshelf/internal/remote"
)

var (
	ErrNoFile   = errors.New("book has no file to read")
	ErrNotFound = books.ErrNotFound
)

// BookStore is the local catalog.
type BookStore interface {
	Add(book *entities.Book) error
	GetByID(id uint) (*entities.Book, error)
	List() ([]books.Summary, error)
	UpdateAttributes(id uint, attrs books.Attributes) (*entities.Book, error)
	SaveProgress(id uint, progress float64) (bool, error)
	MarkCoverSynced(id uint, hash string) error
	Delete(id uint) error
}

// RemoteCatalog is the subset of the remote API used by library writes.
type RemoteCatalog interface {
	PushBook(ctx context.Context, book remote.Book, cover, file []byte) (uint, error)
	ResolveID(ctx context.Context, title, author string) (uint, error)
	UpdateBook(ctx context.Context, id uint, patch remote.Patch) (*remote.Book, error)
	DeleteBook(ctx context.Context, id uint) error
}

// Writer mediates writes across both catalogs.
type Writer interface {
	PerformWrite(ctx context.Context, local catalogsync.LocalOp, remoteOp catalogsync.RemoteOp, silent bool) catalogsync.WriteStatus
}

// Library is the entry point for catalog operations.
type Library struct {
	store  BookStore
	remote RemoteCatalog
	writer Writer
	loans  *BlobLoans

	deferPush func(ctx context.Context, id uint)
}

// New creates a library. loans may be nil when blob loans are not needed.
func New(store BookStore, rc RemoteCatalog, writer Writer, loans *BlobLoans) *Library {
	if loans == nil {
		loans = NewBlobLoans(0)
	}
	return &Library{store: store, remote: rc, writer: writer, loans: loans}
}

// Loans returns the blob loan registry.
func (l *Library) Loans() *BlobLoans {
	return l.loans
}

// SetDeferredPush registers fn to be called with the id of a book whose
// remote push failed while the remote was reachable, so it can be retried.
func (l *Library) SetDeferredPush(fn func(ctx context.Context, id uint)) {
	l.deferPush = fn
}

// ImportResult describes one imported file.
type ImportResult struct {
	Book     *entities.Book          `json:"book"`
	Status   catalogsync.WriteStatus `json:"-"`
	Warnings []string                `json:"warnings,omitempty"`
}

// Import reads an EPUB file and adds it to the catalog. A corrupt archive
// fails with archive.ErrCorruptArchive and nothing is stored. An archive
// whose structure cannot be read is kept with blank metadata.
func (l *Library) Import(ctx context.Context, data []byte) (*ImportResult, error) {
	a, err := archive.Open(data)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	defer a.Close()

	result := &ImportResult{}
	md, err := epub.ExtractMetadata(a)
	switch {
	case errors.Is(err, epub.ErrNoContainer) || errors.Is(err, epub.ErrNoPackage):
		log.Printf("[EPUB] unreadable structure, importing with blank metadata: %v", err)
		result.Warnings = append(result.Warnings, "EPUB structure could not be read; metadata is blank")
	case err != nil:
		return nil, fmt.Errorf("import: %w", err)
	case md.ChapterCount == 0:
		log.Printf("[EPUB] '%s' by %s has no readable chapters", md.Title, md.Author)
		result.Warnings = append(result.Warnings, "no readable chapters found")
	}

	book := &entities.Book{
		Title:          md.Title,
		Author:         md.Author,
		CoverBlob:      md.Cover,
		CoverMediaType: md.CoverMediaType,
		FileBlob:       data,
	}

	pushed := false
	result.Status = l.writer.PerformWrite(ctx,
		func() error {
			if pushed {
				book.CoverSyncedHash = entities.CoverHash(book.CoverBlob)
			}
			return l.store.Add(book)
		},
		func(ctx context.Context) error {
			_, err := l.remote.PushBook(ctx, catalogsync.ToRemote(book), book.CoverBlob, book.FileBlob)
			pushed = err == nil
			return err
		},
		false)
	if err := result.Status.Err(); err != nil {
		return nil, fmt.Errorf("import '%s': %w", book.Title, err)
	}

	result.Book = book
	if l.deferPush != nil && result.Status.RemoteAttempted && !result.Status.Remote {
		l.deferPush(ctx, book.ID)
	}
	return result, nil
}

// PushBook re-sends a local book and its blobs to the remote catalog. It
// fails unless the remote accepted the book, so callers can retry.
func (l *Library) PushBook(ctx context.Context, id uint) error {
	book, err := l.store.GetByID(id)
	if err != nil {
		return err
	}
	pushed := false
	st := l.writer.PerformWrite(ctx,
		func() error {
			if !pushed || !book.HasCover() {
				return nil
			}
			return l.store.MarkCoverSynced(book.ID, entities.CoverHash(book.CoverBlob))
		},
		func(ctx context.Context) error {
			_, err := l.remote.PushBook(ctx, catalogsync.ToRemote(book), book.CoverBlob, book.FileBlob)
			pushed = err == nil
			return err
		},
		true)
	switch {
	case st.Remote:
		log.Printf("[SYNC] pushed '%s' by %s", book.Title, book.Author)
		return nil
	case st.RemoteErr != nil:
		return fmt.Errorf("push '%s': %w", book.Title, st.RemoteErr)
	default:
		return fmt.Errorf("push '%s': %w", book.Title, remote.ErrUnavailable)
	}
}

// List returns the catalog without blobs.
func (l *Library) List() ([]books.Summary, error) {
	return l.store.List()
}

// Get returns one book with blobs.
func (l *Library) Get(id uint) (*entities.Book, error) {
	return l.store.GetByID(id)
}

// UpdateAttributes applies a partial update to a book on both catalogs.
func (l *Library) UpdateAttributes(ctx context.Context, id uint, attrs books.Attributes) (*entities.Book, catalogsync.WriteStatus, error) {
	book, err := l.store.GetByID(id)
	if err != nil {
		return nil, catalogsync.WriteStatus{}, err
	}

	var updated *entities.Book
	st := l.writer.PerformWrite(ctx,
		func() error {
			var err error
			updated, err = l.store.UpdateAttributes(id, attrs)
			return err
		},
		func(ctx context.Context) error {
			remoteID, err := l.remote.ResolveID(ctx, book.Title, book.Author)
			if err != nil {
				return err
			}
			_, err = l.remote.UpdateBook(ctx, remoteID, remote.Patch{Progress: attrs.Progress, Favorite: attrs.Favorite})
			return err
		},
		false)
	if err := st.Err(); err != nil {
		return nil, st, err
	}
	return updated, st, nil
}

// SetFavorite toggles the favorite flag.
func (l *Library) SetFavorite(ctx context.Context, id uint, favorite bool) (*entities.Book, catalogsync.WriteStatus, error) {
	return l.UpdateAttributes(ctx, id, books.Attributes{Favorite: &favorite})
}

// SaveProgress stores reading progress silently. Values that do not exceed
// the stored progress are ignored on both sides.
func (l *Library) SaveProgress(ctx context.Context, id uint, progress float64) error {
	book, err := l.store.GetByID(id)
	if err != nil {
		return err
	}
	if book.Progress != nil && progress <= *book.Progress {
		return nil
	}

	st := l.writer.PerformWrite(ctx,
		func() error {
			_, err := l.store.SaveProgress(id, progress)
			return err
		},
		func(ctx context.Context) error {
			remoteID, err := l.remote.ResolveID(ctx, book.Title, book.Author)
			if err != nil {
				return err
			}
			_, err = l.remote.UpdateBook(ctx, remoteID, remote.Patch{Progress: &progress})
			return err
		},
		true)
	return st.Err()
}

// Delete removes a book from both catalogs and revokes its blob loans.
func (l *Library) Delete(ctx context.Context, id uint) (catalogsync.WriteStatus, error) {
	book, err := l.store.GetByID(id)
	if err != nil {
		return catalogsync.WriteStatus{}, err
	}

	st := l.writer.PerformWrite(ctx,
		func() error { return l.store.Delete(id) },
		func(ctx context.Context) error {
			remoteID, err := l.remote.ResolveID(ctx, book.Title, book.Author)
			if errors.Is(err, remote.ErrBookNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return l.remote.DeleteBook(ctx, remoteID)
		},
		false)
	if err := st.Err(); err != nil {
		return st, err
	}
	l.loans.RevokeBook(id)
	return st, nil
}

// LendCover hands out a revocable token for the cover of book id.
func (l *Library) LendCover(id uint) (*Loan, error) {
	book, err := l.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !book.HasCover() {
		return nil, fmt.Errorf("book %d: %w", id, ErrNoCover)
	}
	mediaType := book.CoverMediaType
	if mediaType == "" {
		mediaType = epub.ImageMIMEType("cover.jpg")
	}
	return l.loans.Lend(id, book.CoverBlob, mediaType), nil
}
