package library

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNoCover = errors.New("book has no cover")

// DefaultLoanTTL bounds how long an unreleased loan stays valid.
const DefaultLoanTTL = 30 * time.Minute

// Loan is a temporary reference to a blob handed to a rendering surface.
type Loan struct {
	Token     string    `json:"token"`
	BookID    uint      `json:"book_id"`
	MediaType string    `json:"media_type"`
	ExpiresAt time.Time `json:"expires_at"`
	data      []byte
}

// Data returns the loaned bytes.
func (l *Loan) Data() []byte {
	return l.data
}

// BlobLoans tracks outstanding loans. A loan must be revoked when its blob
// is no longer displayed; expired loans are swept.
type BlobLoans struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	loans map[string]*Loan
}

// NewBlobLoans creates a registry. ttl <= 0 uses DefaultLoanTTL.
func NewBlobLoans(ttl time.Duration) *BlobLoans {
	if ttl <= 0 {
		ttl = DefaultLoanTTL
	}
	return &BlobLoans{ttl: ttl, now: time.Now, loans: make(map[string]*Loan)}
}

// Lend registers data and returns its loan.
func (b *BlobLoans) Lend(bookID uint, data []byte, mediaType string) *Loan {
	b.mu.Lock()
	defer b.mu.Unlock()
	loan := &Loan{
		Token:     uuid.NewString(),
		BookID:    bookID,
		MediaType: mediaType,
		ExpiresAt: b.now().Add(b.ttl),
		data:      data,
	}
	b.loans[loan.Token] = loan
	return loan
}

// Get returns a live loan.
func (b *BlobLoans) Get(token string) (*Loan, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	loan, ok := b.loans[token]
	if !ok {
		return nil, false
	}
	if b.now().After(loan.ExpiresAt) {
		delete(b.loans, token)
		return nil, false
	}
	return loan, true
}

// Revoke releases a loan. It reports whether the token was outstanding.
func (b *BlobLoans) Revoke(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.loans[token]
	delete(b.loans, token)
	return ok
}

// RevokeBook releases every loan of one book.
func (b *BlobLoans) RevokeBook(bookID uint) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for token, loan := range b.loans {
		if loan.BookID == bookID {
			delete(b.loans, token)
			n++
		}
	}
	return n
}

// Sweep drops expired loans and returns how many were removed.
func (b *BlobLoans) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	n := 0
	for token, loan := range b.loans {
		if now.After(loan.ExpiresAt) {
			delete(b.loans, token)
			n++
		}
	}
	return n
}

// Len returns the number of outstanding loans.
func (b *BlobLoans) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.loans)
}
