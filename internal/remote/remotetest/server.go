// Package remotetest provides an in-memory remote catalog for tests.
package remotetest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/epubshelf/internal/remote"
)

// Server is an httptest server implementing the remote catalog API.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	books      map[uint]*remote.Book
	files      map[uint][]byte
	nextID     uint
	calls      []string
	healthy    bool
	failWrites bool
	omitCovers bool
}

// NewServer starts a healthy, empty catalog.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		books:   make(map[uint]*remote.Book),
		files:   make(map[uint][]byte),
		nextID:  1,
		healthy: true,
	}

	r := gin.New()
	r.Use(s.record)
	r.GET("/api/status", s.status)
	r.GET("/api/books", s.list)
	r.POST("/api/books", s.writable, s.add)
	r.PUT("/api/books/:id", s.writable, s.update)
	r.DELETE("/api/books/:id", s.writable, s.delete)
	r.PUT("/api/books/:id/cover", s.writable, s.cover)
	r.PUT("/api/books/:id/upload", s.writable, s.upload)

	s.Server = httptest.NewServer(r)
	return s
}

// SetHealthy controls the /api/status answer.
func (s *Server) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// SetFailWrites makes every mutating request fail with HTTP 500.
func (s *Server) SetFailWrites(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = fail
}

// SetOmitCovers makes GET /api/books leave coverBlob out of every record,
// as catalogs that only serve scalar fields do.
func (s *Server) SetOmitCovers(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitCovers = omit
}

// CoverUploads counts cover uploads received.
func (s *Server) CoverUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, "PUT ") && strings.HasSuffix(c, "/cover") {
			n++
		}
	}
	return n
}

// Seed stores b as if it had been created remotely and returns it with its id.
func (s *Server) Seed(b remote.Book) remote.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.nextID
	s.nextID++
	stored := b
	s.books[b.ID] = &stored
	return b
}

// Books returns a snapshot of the catalog ordered by id.
func (s *Server) Books() []remote.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// File returns the uploaded payload of book id.
func (s *Server) File(id uint) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[id]
}

// Calls returns every request seen as "METHOD /path".
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Mutations counts requests that were not GETs.
func (s *Server) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if len(c) < 4 || c[:4] != "GET " {
			n++
		}
	}
	return n
}

// ResetCalls clears the request log.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Server) snapshot() []remote.Book {
	out := make([]remote.Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.calls = append(s.calls, c.Request.Method+" "+c.Request.URL.Path)
	s.mu.Unlock()
	c.Next()
}

func (s *Server) writable(c *gin.Context) {
	s.mu.Lock()
	fail := s.failWrites
	s.mu.Unlock()
	if fail {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "write failed"})
		return
	}
	c.Next()
}

func (s *Server) status(c *gin.Context) {
	s.mu.Lock()
	healthy := s.healthy
	s.mu.Unlock()
	if !healthy {
		c.String(http.StatusServiceUnavailable, "DOWN")
		return
	}
	c.String(http.StatusOK, "OK")
}

func (s *Server) list(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	books := s.snapshot()
	if s.omitCovers {
		for i := range books {
			books[i].CoverBlob = nil
		}
	}
	c.JSON(http.StatusOK, books)
}

func (s *Server) add(c *gin.Context) {
	var b remote.Book
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.books {
		if existing.Title == b.Title {
			c.String(http.StatusConflict, "title already exists")
			return
		}
	}
	b.ID = s.nextID
	s.nextID++
	b.CoverBlob = nil
	b.FileUploaded = false
	stored := b
	s.books[b.ID] = &stored
	c.JSON(http.StatusOK, b)
}

func (s *Server) lookup(c *gin.Context) (*remote.Book, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid id")
		return nil, false
	}
	b, ok := s.books[uint(id)]
	if !ok {
		c.Status(http.StatusNotFound)
		return nil, false
	}
	return b, true
}

func (s *Server) update(c *gin.Context) {
	var p remote.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.lookup(c)
	if !ok {
		return
	}
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Progress != nil {
		b.Progress = p.Progress
	}
	if p.Favorite != nil {
		b.Favorite = p.Favorite
	}
	c.JSON(http.StatusOK, *b)
}

func (s *Server) delete(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.lookup(c)
	if !ok {
		return
	}
	delete(s.books, b.ID)
	delete(s.files, b.ID)
	c.Status(http.StatusNoContent)
}

func (s *Server) cover(c *gin.Context) {
	header, err := c.FormFile("cover")
	if err != nil {
		c.String(http.StatusBadRequest, "cover file is missing")
		return
	}
	f, err := header.Open()
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		c.String(http.StatusBadRequest, "cover file is empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.lookup(c)
	if !ok {
		return
	}
	b.CoverBlob = data
	c.JSON(http.StatusOK, *b)
}

func (s *Server) upload(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil || len(data) == 0 {
		c.String(http.StatusBadRequest, "file is empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.lookup(c)
	if !ok {
		return
	}
	b.FileUploaded = true
	s.files[b.ID] = data
	c.JSON(http.StatusOK, *b)
}
