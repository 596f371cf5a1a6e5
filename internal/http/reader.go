package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/epubshelf/internal/epub"
	"github.com/mrlokans/epubshelf/internal/library"
	"github.com/mrlokans/epubshelf/internal/progress"
)

// ReaderController exposes reader sessions.
type ReaderController struct {
	sessions Sessions
}

func NewReaderController(sessions Sessions) *ReaderController {
	return &ReaderController{sessions: sessions}
}

// SessionResponse describes an opened session.
type SessionResponse struct {
	SessionID      string  `json:"session_id"`
	BookID         uint    `json:"book_id"`
	Title          string  `json:"title"`
	ChapterCount   int     `json:"chapter_count"`
	ResumeProgress float64 `json:"resume_progress"`
	BaseIndex      int     `json:"base_index"`
}

// ChaptersResponse is one loaded window.
type ChaptersResponse struct {
	Chapters []epub.Chapter `json:"chapters"`
	Base     int            `json:"base"`
	End      int            `json:"end"`
	Complete bool           `json:"complete"`
}

// Open handles POST /api/library/:id/open. Any previous session is closed.
func (rc *ReaderController) Open(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	s, err := rc.sessions.Open(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, epub.ErrNoContainer) || errors.Is(err, epub.ErrNoPackage) {
			respondError(c, http.StatusUnprocessableEntity, "unreadable_epub", "the book structure cannot be read")
			return
		}
		respondBookError(c, err, "open book")
		return
	}
	base, _ := s.Window()
	c.JSON(http.StatusCreated, SessionResponse{
		SessionID:      s.ID,
		BookID:         s.BookID,
		Title:          s.Title,
		ChapterCount:   s.ChapterCount(),
		ResumeProgress: s.ResumeProgress(),
		BaseIndex:      base,
	})
}

// Chapters handles GET /api/sessions/:sid/chapters. Without a start query
// it loads the first window at the resume chapter.
func (rc *ReaderController) Chapters(c *gin.Context) {
	s, ok := rc.session(c)
	if !ok {
		return
	}

	var (
		chapters []epub.Chapter
		err      error
	)
	if c.Query("start") == "" {
		chapters, err = s.Initial(c.Request.Context())
	} else {
		start, ok := parseIntQuery(c, "start", 0)
		if !ok {
			return
		}
		count, ok := parseIntQuery(c, "count", 1)
		if !ok {
			return
		}
		chapters, err = s.Chapters(c.Request.Context(), start, count)
	}
	if err != nil {
		respondSessionError(c, err)
		return
	}
	rc.respondWindow(c, s, chapters)
}

// LoadMore handles POST /api/sessions/:sid/more
func (rc *ReaderController) LoadMore(c *gin.Context) {
	s, ok := rc.session(c)
	if !ok {
		return
	}
	chapters, err := s.LoadMore(c.Request.Context())
	if err != nil {
		respondSessionError(c, err)
		return
	}
	rc.respondWindow(c, s, chapters)
}

func (rc *ReaderController) respondWindow(c *gin.Context, s *library.Session, chapters []epub.Chapter) {
	base, end := s.Window()
	if chapters == nil {
		chapters = []epub.Chapter{}
	}
	c.JSON(http.StatusOK, ChaptersResponse{
		Chapters: chapters,
		Base:     base,
		End:      end,
		Complete: end >= s.ChapterCount(),
	})
}

// Scroll handles POST /api/sessions/:sid/scroll with a geometry snapshot.
func (rc *ReaderController) Scroll(c *gin.Context) {
	s, ok := rc.session(c)
	if !ok {
		return
	}
	var snap progress.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		respondBadRequest(c, "invalid snapshot")
		return
	}
	p, computed, err := s.Observe(&snap)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"progress": p,
		"computed": computed,
	})
}

// Resume handles POST /api/sessions/:sid/resume. It answers the scrollTop
// that places the viewport at the resume position, once per session.
func (rc *ReaderController) Resume(c *gin.Context) {
	s, ok := rc.session(c)
	if !ok {
		return
	}
	var snap progress.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		respondBadRequest(c, "invalid snapshot")
		return
	}
	top, scrolled, err := s.ResumeScroll(&snap)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scrollTop": top,
		"scrolled":  scrolled,
	})
}

// Close handles DELETE /api/sessions/:sid
func (rc *ReaderController) Close(c *gin.Context) {
	s, ok := rc.session(c)
	if !ok {
		return
	}
	if err := s.Close(); err != nil {
		respondInternalError(c, err, "close session")
		return
	}
	c.Status(http.StatusNoContent)
}

func (rc *ReaderController) session(c *gin.Context) (*library.Session, bool) {
	s, err := rc.sessions.Session(c.Param("sid"))
	if err != nil {
		respondSessionError(c, err)
		return nil, false
	}
	return s, true
}

func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, library.ErrSessionNotFound):
		respondNotFound(c, "session")
	case errors.Is(err, library.ErrStaleSession):
		respondError(c, http.StatusConflict, "stale_session", "the session was closed or replaced")
	default:
		respondInternalError(c, err, "reader session")
	}
}
