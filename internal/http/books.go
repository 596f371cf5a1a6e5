package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/epubshelf/internal/archive"
	"github.com/mrlokans/epubshelf/internal/database/books"
	"github.com/mrlokans/epubshelf/internal/entities"
	"github.com/mrlokans/epubshelf/internal/library"
)

const defaultMaxUploadBytes int64 = 256 << 20

// BooksController serves the local catalog.
type BooksController struct {
	catalog        Catalog
	maxUploadBytes int64
}

func NewBooksController(catalog Catalog, maxUploadBytes int64) *BooksController {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &BooksController{catalog: catalog, maxUploadBytes: maxUploadBytes}
}

// BookResponse is a book without its blobs.
type BookResponse struct {
	ID             uint     `json:"id"`
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	Progress       *float64 `json:"progress,omitempty"`
	Favorite       *bool    `json:"favorite,omitempty"`
	CoverMediaType string   `json:"coverMediaType,omitempty"`
	HasFile        bool     `json:"hasFile"`
	HasCover       bool     `json:"hasCover"`
}

func bookResponse(b *entities.Book) BookResponse {
	return BookResponse{
		ID:             b.ID,
		Title:          b.Title,
		Author:         b.Author,
		Progress:       b.Progress,
		Favorite:       b.Favorite,
		CoverMediaType: b.CoverMediaType,
		HasFile:        b.HasFile(),
		HasCover:       b.HasCover(),
	}
}

// WriteResponse is returned by every coordinated write.
type WriteResponse struct {
	Book     *BookResponse  `json:"book,omitempty"`
	Notice   NoticeResponse `json:"notice"`
	Warnings []string       `json:"warnings,omitempty"`
}

// List handles GET /api/library
func (bc *BooksController) List(c *gin.Context) {
	list, err := bc.catalog.List()
	if err != nil {
		respondInternalError(c, err, "list books")
		return
	}
	out := make([]BookResponse, 0, len(list))
	for _, s := range list {
		out = append(out, BookResponse{
			ID:             s.ID,
			Title:          s.Title,
			Author:         s.Author,
			Progress:       s.Progress,
			Favorite:       s.Favorite,
			CoverMediaType: s.CoverMediaType,
			HasFile:        s.HasFile,
			HasCover:       s.HasCover,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"books": out,
		"count": len(out),
	})
}

// Get handles GET /api/library/:id
func (bc *BooksController) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	book, err := bc.catalog.Get(id)
	if err != nil {
		respondBookError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, bookResponse(book))
}

// Import handles POST /api/library/import with a multipart "file" field.
func (bc *BooksController) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "file is required")
		return
	}
	if fileHeader.Size > bc.maxUploadBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "too_large", "file is too large")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondInternalError(c, err, "open upload")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, bc.maxUploadBytes+1))
	if err != nil {
		respondInternalError(c, err, "read upload")
		return
	}
	if int64(len(data)) > bc.maxUploadBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "too_large", "file is too large")
		return
	}

	result, err := bc.catalog.Import(c.Request.Context(), data)
	if errors.Is(err, archive.ErrCorruptArchive) {
		respondError(c, http.StatusBadRequest, "corrupt_archive", "the file is not a readable EPUB archive")
		return
	}
	if err != nil {
		respondInternalError(c, err, "import")
		return
	}

	book := bookResponse(result.Book)
	c.JSON(http.StatusCreated, WriteResponse{
		Book:     &book,
		Notice:   noticeOf(result.Status),
		Warnings: result.Warnings,
	})
}

// UpdateRequest carries a partial attribute update.
type UpdateRequest struct {
	Progress *float64 `json:"progress"`
	Favorite *bool    `json:"favorite"`
}

// Update handles PATCH /api/library/:id
func (bc *BooksController) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	attrs := books.Attributes{Progress: req.Progress, Favorite: req.Favorite}
	if attrs.Empty() {
		respondBadRequest(c, "nothing to update")
		return
	}
	if req.Progress != nil && *req.Progress < 0 {
		respondBadRequest(c, "progress must not be negative")
		return
	}

	book, st, err := bc.catalog.UpdateAttributes(c.Request.Context(), id, attrs)
	if err != nil {
		if errors.Is(err, books.ErrNotFound) {
			respondNotFound(c, "book")
			return
		}
		c.JSON(http.StatusInternalServerError, WriteResponse{Notice: noticeOf(st)})
		return
	}
	resp := bookResponse(book)
	c.JSON(http.StatusOK, WriteResponse{Book: &resp, Notice: noticeOf(st)})
}

// Delete handles DELETE /api/library/:id
func (bc *BooksController) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	st, err := bc.catalog.Delete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, books.ErrNotFound) {
			respondNotFound(c, "book")
			return
		}
		c.JSON(http.StatusInternalServerError, WriteResponse{Notice: noticeOf(st)})
		return
	}
	c.JSON(http.StatusOK, WriteResponse{Notice: noticeOf(st)})
}

// CoverLoan handles POST /api/library/:id/cover-loan
func (bc *BooksController) CoverLoan(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	loan, err := bc.catalog.LendCover(id)
	if err != nil {
		respondBookError(c, err, "lend cover")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      loan.Token,
		"url":        "/blobs/" + loan.Token,
		"media_type": loan.MediaType,
		"expires_at": loan.ExpiresAt,
	})
}

func respondBookError(c *gin.Context, err error, context string) {
	switch {
	case errors.Is(err, books.ErrNotFound):
		respondNotFound(c, "book")
	case errors.Is(err, library.ErrNoCover):
		respondError(c, http.StatusNotFound, "no_cover", "book has no cover")
	case errors.Is(err, library.ErrNoFile):
		respondError(c, http.StatusConflict, "no_file", "book has no file to read")
	default:
		respondInternalError(c, err, context)
	}
}
