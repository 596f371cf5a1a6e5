package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Book is one record of the local catalog. Title and Author together form
// the natural key shared with the remote catalog.
type Book struct {
	ID             uint     `gorm:"primaryKey" json:"id"`
	Title          string   `gorm:"size:512;not null;uniqueIndex:idx_books_title_author" json:"title"`
	Author         string   `gorm:"size:512;not null;uniqueIndex:idx_books_title_author" json:"author"`
	Progress       *float64 `json:"progress,omitempty"`
	Favorite       *bool    `json:"favorite,omitempty"`
	CoverBlob      []byte   `json:"-"`
	CoverMediaType string   `gorm:"size:100" json:"cover_media_type,omitempty"`
	// CoverSyncedHash is the CoverHash of the cover the remote catalog last
	// accepted or supplied.
	CoverSyncedHash string    `gorm:"size:64" json:"-"`
	FileBlob        []byte    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Book) TableName() string {
	return "books"
}

// HasFile reports whether the book carries an EPUB payload. Books without
// one are metadata-only and cannot be opened for reading.
func (b *Book) HasFile() bool {
	return len(b.FileBlob) > 0
}

func (b *Book) HasCover() bool {
	return len(b.CoverBlob) > 0
}

// CoverSynced reports whether the current cover is known to be on the remote.
func (b *Book) CoverSynced() bool {
	return b.HasCover() && b.CoverSyncedHash == CoverHash(b.CoverBlob)
}

// CoverHash fingerprints a cover image. Empty data hashes to "".
func CoverHash(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Key returns the natural de-duplication key.
func (b *Book) Key() BookKey {
	return BookKey{Title: b.Title, Author: b.Author}
}

// BookKey identifies a book across catalogs.
type BookKey struct {
	Title  string
	Author string
}

// FloatPtr and BoolPtr build optional fields.
func FloatPtr(v float64) *float64 { return &v }

func BoolPtr(v bool) *bool { return &v }
