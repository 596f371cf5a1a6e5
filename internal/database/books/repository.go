// Package books provides the local catalog store: durable book records and
// their cover and file blobs.
//
// # Interface Implementation
//
//	var _ catalogsync.LocalStore = (*Repository)(nil)
//	var _ library.BookStore = (*Repository)(nil)
//
// # Usage
//
//	repo := books.NewRepository(db)
//	err := repo.Add(&entities.Book{Title: "Dune", Author: "Herbert"})
package books

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/mrlokans/epubshelf/internal/entities"
)

var ErrNotFound = errors.New("book not found")

// Repository handles all book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Summary is a book row without its blobs.
type Summary struct {
	ID             uint     `json:"id"`
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	Progress       *float64 `json:"progress,omitempty"`
	Favorite       *bool    `json:"favorite,omitempty"`
	CoverMediaType string   `json:"cover_media_type,omitempty"`
	HasFile        bool     `json:"has_file"`
	HasCover       bool     `json:"has_cover"`
}

// Attributes is a partial update of a book's scalar fields.
type Attributes struct {
	Progress *float64 `json:"progress,omitempty"`
	Favorite *bool    `json:"favorite,omitempty"`
}

func (a Attributes) Empty() bool {
	return a.Progress == nil && a.Favorite == nil
}

// Add inserts book, or merges it into the existing record with the same
// title and author. On return book.ID identifies the stored record.
func (r *Repository) Add(book *entities.Book) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing entities.Book
		err := tx.Where("title = ? AND author = ?", book.Title, book.Author).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			book.ID = 0
			if err := tx.Create(book).Error; err != nil {
				return fmt.Errorf("failed to create book %q: %w", book.Title, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up book %q: %w", book.Title, err)
		}

		mergeInto(&existing, book)
		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to update book %q: %w", book.Title, err)
		}
		log.Printf("Book '%s' by %s already stored, updated record %d", book.Title, book.Author, existing.ID)
		*book = existing
		return nil
	})
}

// mergeInto copies every populated field of src onto dst.
func mergeInto(dst, src *entities.Book) {
	if src.Progress != nil {
		dst.Progress = src.Progress
	}
	if src.Favorite != nil {
		dst.Favorite = src.Favorite
	}
	if len(src.CoverBlob) > 0 {
		dst.CoverBlob = src.CoverBlob
		dst.CoverMediaType = src.CoverMediaType
	}
	if len(src.FileBlob) > 0 {
		dst.FileBlob = src.FileBlob
	}
	if src.CoverSyncedHash != "" {
		dst.CoverSyncedHash = src.CoverSyncedHash
	}
}

// MarkCoverSynced records the fingerprint of the cover the remote catalog
// now holds. UpdatedAt is left untouched.
func (r *Repository) MarkCoverSynced(id uint, hash string) error {
	res := r.db.Model(&entities.Book{}).Where("id = ?", id).UpdateColumn("cover_synced_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to mark cover of book %d synced: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAll returns every book including blobs, ordered by id.
func (r *Repository) GetAll() ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.Order("id ASC").Find(&books).Error
	return books, err
}

// List returns every book without loading blobs.
func (r *Repository) List() ([]Summary, error) {
	var summaries []Summary
	err := r.db.Model(&entities.Book{}).
		Select("id, title, author, progress, favorite, cover_media_type, " +
			"COALESCE(length(file_blob), 0) > 0 AS has_file, " +
			"COALESCE(length(cover_blob), 0) > 0 AS has_cover").
		Order("id ASC").
		Scan(&summaries).Error
	return summaries, err
}

// GetByID retrieves a book with its blobs.
func (r *Repository) GetByID(id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.First(&book, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByTitleAndAuthor retrieves a book by its natural key.
func (r *Repository) FindByTitleAndAuthor(title, author string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.Where("title = ? AND author = ?", title, author).First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// Update overwrites a stored book.
func (r *Repository) Update(book *entities.Book) error {
	if book.ID == 0 {
		return fmt.Errorf("update book %q: %w", book.Title, ErrNotFound)
	}
	return r.db.Save(book).Error
}

// UpdateAttributes applies a partial update and returns the stored book.
func (r *Repository) UpdateAttributes(id uint, attrs Attributes) (*entities.Book, error) {
	updates := map[string]any{}
	if attrs.Progress != nil {
		updates["progress"] = *attrs.Progress
	}
	if attrs.Favorite != nil {
		updates["favorite"] = *attrs.Favorite
	}

	if len(updates) > 0 {
		result := r.db.Model(&entities.Book{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetByID(id)
}

// SaveProgress stores progress only when it exceeds the stored value or none
// is stored yet. It reports whether a row changed.
func (r *Repository) SaveProgress(id uint, progress float64) (bool, error) {
	result := r.db.Model(&entities.Book{}).
		Where("id = ? AND (progress IS NULL OR progress < ?)", id, progress).
		Update("progress", progress)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Delete removes a book.
func (r *Repository) Delete(id uint) error {
	result := r.db.Delete(&entities.Book{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored books.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&entities.Book{}).Count(&count).Error
	return count, err
}
