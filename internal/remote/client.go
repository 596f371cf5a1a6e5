// Package remote is the client for the remote book catalog HTTP API.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryCount = 2

	retryWaitTime    = 500 * time.Millisecond
	retryMaxWaitTime = 5 * time.Second
	maxErrorBody     = 512
)

// Book is the remote representation of a catalog record. CoverBlob travels
// as base64 in JSON.
type Book struct {
	ID           uint     `json:"id,omitempty"`
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	Progress     *float64 `json:"progress,omitempty"`
	Favorite     *bool    `json:"favorite,omitempty"`
	CoverBlob    []byte   `json:"coverBlob,omitempty"`
	FileUploaded bool     `json:"fileUploaded,omitempty"`
}

// Patch is a partial update sent with UpdateBook. Nil fields are omitted.
type Patch struct {
	Title    *string  `json:"title,omitempty"`
	Author   *string  `json:"author,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
	Favorite *bool    `json:"favorite,omitempty"`
}

// Empty reports whether the patch carries no fields.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Progress == nil && p.Favorite == nil
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client talks to the remote catalog.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the catalog at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetLogger(syncLogger{}).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(retryWaitTime).
		SetRetryMaxWaitTime(retryMaxWaitTime).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})

	return &Client{http: c}
}

// Status calls GET /api/status. It returns nil only when the catalog
// answers "OK".
func (c *Client) Status(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/api/status")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %v", ErrUnavailable, requestError(resp))
	}

	body := strings.Trim(strings.TrimSpace(resp.String()), `"`)
	if body != "OK" {
		return fmt.Errorf("%w: unexpected status body %q", ErrUnavailable, truncate(body))
	}
	return nil
}

// ListBooks fetches the full remote catalog.
func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var books []Book
	resp, err := c.http.R().SetContext(ctx).SetResult(&books).Get("/api/books")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// AddBook creates a remote record from the scalar fields of book.
func (c *Client) AddBook(ctx context.Context, book Book) (*Book, error) {
	payload := Book{
		Title:    book.Title,
		Author:   book.Author,
		Progress: book.Progress,
		Favorite: book.Favorite,
	}

	var created Book
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&created).
		Post("/api/books")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to add book %q: %w", book.Title, err)
	}
	return &created, nil
}

// UpdateBook applies patch to the remote record id.
func (c *Client) UpdateBook(ctx context.Context, id uint, patch Patch) (*Book, error) {
	var updated Book
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatUint(uint64(id), 10)).
		SetBody(patch).
		SetResult(&updated).
		Put("/api/books/{id}")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("failed to update book %d: %w", id, err)
	}
	return &updated, nil
}

// DeleteBook removes the remote record id.
func (c *Client) DeleteBook(ctx context.Context, id uint) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatUint(uint64(id), 10)).
		Delete("/api/books/{id}")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("failed to delete book %d: %w", id, err)
	}
	return nil
}

// UploadCover sends a cover image as multipart field "cover".
func (c *Client) UploadCover(ctx context.Context, id uint, cover []byte) error {
	if len(cover) == 0 {
		return errors.New("no cover to upload")
	}
	mtype := mimetype.Detect(cover)
	filename := "cover" + mtype.Extension()

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatUint(uint64(id), 10)).
		SetMultipartField("cover", filename, mtype.String(), bytes.NewReader(cover)).
		Put("/api/books/{id}/cover")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("failed to upload cover for book %d: %w", id, err)
	}
	return nil
}

// UploadFile sends the raw EPUB payload.
func (c *Client) UploadFile(ctx context.Context, id uint, file []byte) error {
	if len(file) == 0 {
		return errors.New("no file to upload")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatUint(uint64(id), 10)).
		SetHeader("Content-Type", "application/epub+zip").
		SetBody(file).
		Put("/api/books/{id}/upload")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("failed to upload file for book %d: %w", id, err)
	}
	return nil
}

// ResolveID finds the remote id of the record with the given title and author.
func (c *Client) ResolveID(ctx context.Context, title, author string) (uint, error) {
	books, err := c.ListBooks(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range books {
		if b.Title == title && b.Author == author {
			return b.ID, nil
		}
	}
	return 0, fmt.Errorf("%q by %s: %w", title, author, ErrBookNotFound)
}

// UploadCoverFor resolves the remote id by title and author, then uploads the cover.
func (c *Client) UploadCoverFor(ctx context.Context, title, author string, cover []byte) error {
	id, err := c.ResolveID(ctx, title, author)
	if err != nil {
		return err
	}
	return c.UploadCover(ctx, id, cover)
}

// UploadFileFor resolves the remote id by title and author, then uploads the file.
func (c *Client) UploadFileFor(ctx context.Context, title, author string, file []byte) error {
	id, err := c.ResolveID(ctx, title, author)
	if err != nil {
		return err
	}
	return c.UploadFile(ctx, id, file)
}

// PushBook makes the remote catalog hold book and its blobs. The record is
// resolved by title and author and created when missing; scalar fields are
// then patched and each non-empty blob uploaded. It returns the remote id.
func (c *Client) PushBook(ctx context.Context, book Book, cover, file []byte) (uint, error) {
	id, err := c.ResolveID(ctx, book.Title, book.Author)
	switch {
	case errors.Is(err, ErrBookNotFound):
		created, err := c.AddBook(ctx, book)
		if err != nil {
			return 0, err
		}
		id = created.ID
	case err != nil:
		return 0, err
	default:
		patch := Patch{Progress: book.Progress, Favorite: book.Favorite}
		if !patch.Empty() {
			if _, err := c.UpdateBook(ctx, id, patch); err != nil {
				return id, err
			}
		}
	}

	if len(cover) > 0 {
		if err := c.UploadCover(ctx, id, cover); err != nil {
			return id, err
		}
	}
	if len(file) > 0 {
		if err := c.UploadFile(ctx, id, file); err != nil {
			return id, err
		}
	}
	return id, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return requestError(resp)
	}
	return nil
}

func requestError(resp *resty.Response) *RequestError {
	e := &RequestError{
		StatusCode: resp.StatusCode(),
		Body:       truncate(strings.TrimSpace(resp.String())),
	}
	if req := resp.Request; req != nil {
		e.Method = req.Method
		if req.RawRequest != nil {
			e.Path = req.RawRequest.URL.Path
		}
	}
	return e
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// syncLogger routes resty diagnostics through the standard logger.
type syncLogger struct{}

func (syncLogger) Errorf(format string, v ...any) { log.Printf("[SYNC ERROR] "+format, v...) }
func (syncLogger) Warnf(format string, v ...any)  { log.Printf("[SYNC] "+format, v...) }
func (syncLogger) Debugf(string, ...any)          {}
