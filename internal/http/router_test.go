package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/database"
	"github.com/mrlokans/epubshelf/internal/database/books"
	"github.com/mrlokans/epubshelf/internal/database/syncruns"
	"github.com/mrlokans/epubshelf/internal/entities"
	"github.com/mrlokans/epubshelf/internal/epub/epubtest"
	"github.com/mrlokans/epubshelf/internal/library"
	"github.com/mrlokans/epubshelf/internal/remote"
	"github.com/mrlokans/epubshelf/internal/remote/remotetest"
)

type testApp struct {
	router *gin.Engine
	srv    *remotetest.Server
	coord  *catalogsync.Coordinator
	cfg    RouterConfig
}

func setupTestApp(t *testing.T, configure ...func(*RouterConfig)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewQuietDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := remotetest.NewServer()
	t.Cleanup(srv.Close)

	client := remote.NewClient(remote.Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	store := books.NewRepository(db.DB)
	runs := syncruns.NewRepository(db.DB)
	notices := catalogsync.NewNoticeBuffer(50)
	coord := catalogsync.New(store, client, catalogsync.Options{Notifier: notices, Runs: runs})
	loans := library.NewBlobLoans(time.Minute)
	lib := library.New(store, client, coord, loans)
	reader := library.NewReader(lib, library.ReaderOptions{Debounce: 10 * time.Millisecond})
	t.Cleanup(reader.Close)

	cfg := RouterConfig{
		Catalog:    lib,
		Sessions:   reader,
		Loans:      loans,
		Database:   db,
		SyncState:  coord,
		Notices:    notices,
		Reconciler: coord,
		SyncRuns:   runs,
		Version:    "test",
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	return &testApp{router: NewRouter(cfg), srv: srv, coord: coord, cfg: cfg}
}

func (a *testApp) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) upload(t *testing.T, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "book.epub")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/library/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testApp) importBook(t *testing.T, title string) BookResponse {
	t.Helper()
	data := epubtest.Book{
		Title:    title,
		Author:   "Herbert",
		Chapters: []string{"One", "Two", "Three"},
		Cover:    epubtest.PNG,
	}.Bytes(t)
	w := a.upload(t, data)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[WriteResponse](t, w)
	require.NotNil(t, resp.Book)
	return *resp.Book
}

func TestHealth(t *testing.T) {
	app := setupTestApp(t)

	w := app.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Checks["database"])
	require.NotNil(t, health.Sync)
	assert.Equal(t, string(catalogsync.StateOffline), health.Sync.State)

	w = app.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"OK"`, w.Body.String())
}

func TestImport(t *testing.T) {
	t.Run("stores the book offline", func(t *testing.T) {
		app := setupTestApp(t)
		data := epubtest.Book{Title: "Dune", Author: "Herbert", Chapters: []string{"One"}}.Bytes(t)

		w := app.upload(t, data)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		resp := decode[WriteResponse](t, w)
		assert.Equal(t, "Dune", resp.Book.Title)
		assert.True(t, resp.Book.HasFile)
		assert.False(t, resp.Book.HasCover)
		assert.Equal(t, catalogsync.MsgSavedOffline, resp.Notice.Message)
		assert.Empty(t, app.srv.Calls())
	})

	t.Run("rejects corrupt archives", func(t *testing.T) {
		app := setupTestApp(t)
		w := app.upload(t, []byte("garbage"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "corrupt_archive", decode[ErrorResponse](t, w).Code)

		list := decode[map[string]any](t, app.do(t, http.MethodGet, "/api/library", nil))
		assert.Equal(t, float64(0), list["count"])
	})

	t.Run("requires a file", func(t *testing.T) {
		app := setupTestApp(t)
		w := app.do(t, http.MethodPost, "/api/library/import", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("enforces the size limit", func(t *testing.T) {
		app := setupTestApp(t, func(cfg *RouterConfig) { cfg.MaxUploadBytes = 16 })
		data := epubtest.Book{Title: "Dune", Author: "Herbert", Chapters: []string{"One"}}.Bytes(t)
		w := app.upload(t, data)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestLibraryCRUD(t *testing.T) {
	app := setupTestApp(t)
	book := app.importBook(t, "Dune")
	app.importBook(t, "Children of Dune")

	list := decode[map[string]any](t, app.do(t, http.MethodGet, "/api/library", nil))
	assert.Equal(t, float64(2), list["count"])

	path := "/api/library/" + itoa(book.ID)
	w := app.do(t, http.MethodPatch, path, map[string]any{"favorite": true, "progress": 1.25})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[WriteResponse](t, w)
	require.NotNil(t, updated.Book.Favorite)
	assert.True(t, *updated.Book.Favorite)
	assert.Equal(t, 1.25, *updated.Book.Progress)

	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPatch, path, map[string]any{}).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodPatch, path, map[string]any{"progress": -1}).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPatch, "/api/library/999", map[string]any{"favorite": true}).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, "/api/library/abc", nil).Code)

	w = app.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, path, nil).Code)
}

func TestCoverLoan(t *testing.T) {
	app := setupTestApp(t)
	book := app.importBook(t, "Dune")

	w := app.do(t, http.MethodPost, "/api/library/"+itoa(book.ID)+"/cover-loan", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	loan := decode[map[string]any](t, w)
	url := loan["url"].(string)

	w = app.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, epubtest.PNG, w.Body.Bytes())

	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, url, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, url, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, url, nil).Code)
}

func TestReaderSession(t *testing.T) {
	app := setupTestApp(t)
	book := app.importBook(t, "Dune")
	bookPath := "/api/library/" + itoa(book.ID)

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPatch, bookPath, map[string]any{"progress": 1.5}).Code)

	w := app.do(t, http.MethodPost, bookPath+"/open", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	session := decode[SessionResponse](t, w)
	assert.Equal(t, 3, session.ChapterCount)
	assert.Equal(t, 1, session.BaseIndex)
	assert.Equal(t, 1.5, session.ResumeProgress)
	sessionPath := "/api/sessions/" + session.SessionID

	w = app.do(t, http.MethodGet, sessionPath+"/chapters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	window := decode[ChaptersResponse](t, w)
	require.Len(t, window.Chapters, 1)
	assert.Contains(t, window.Chapters[0].Content, "Two")
	assert.False(t, window.Complete)

	w = app.do(t, http.MethodPost, sessionPath+"/more", nil)
	require.Equal(t, http.StatusOK, w.Code)
	window = decode[ChaptersResponse](t, w)
	assert.Equal(t, 1, window.Base)
	assert.Equal(t, 3, window.End)
	assert.True(t, window.Complete)

	w = app.do(t, http.MethodGet, sessionPath+"/chapters?start=0&count=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[ChaptersResponse](t, w).Chapters, 3)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, sessionPath+"/chapters?start=x", nil).Code)

	snapshot := map[string]any{
		"chapters":     []map[string]float64{{"top": 0, "height": 1000}, {"top": 1000, "height": 1000}},
		"scrollTop":    0,
		"clientHeight": 200,
	}
	w = app.do(t, http.MethodPost, sessionPath+"/resume", snapshot)
	require.Equal(t, http.StatusOK, w.Code)
	resume := decode[map[string]any](t, w)
	assert.Equal(t, 300.0, resume["scrollTop"])
	assert.Equal(t, true, resume["scrolled"])

	snapshot["scrollTop"] = 1250
	snapshot["clientHeight"] = 500
	w = app.do(t, http.MethodPost, sessionPath+"/scroll", snapshot)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.75, decode[map[string]any](t, w)["progress"])

	assert.Eventually(t, func() bool {
		w := app.do(t, http.MethodGet, bookPath, nil)
		b := decode[BookResponse](t, w)
		return b.Progress != nil && *b.Progress == 2.75
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, sessionPath, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, sessionPath+"/chapters", nil).Code)
}

func TestOpen_ReplacesPreviousSession(t *testing.T) {
	app := setupTestApp(t)
	first := app.importBook(t, "Dune")
	second := app.importBook(t, "Emma")

	s1 := decode[SessionResponse](t, app.do(t, http.MethodPost, "/api/library/"+itoa(first.ID)+"/open", nil))
	s2 := decode[SessionResponse](t, app.do(t, http.MethodPost, "/api/library/"+itoa(second.ID)+"/open", nil))

	w := app.do(t, http.MethodGet, "/api/sessions/"+s1.SessionID+"/chapters", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "stale_session")
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/api/sessions/"+s2.SessionID+"/chapters", nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodPost, "/api/library/999/open", nil).Code)
}

func TestSync_Inline(t *testing.T) {
	app := setupTestApp(t)
	app.importBook(t, "Dune")

	w := app.do(t, http.MethodPost, "/api/sync", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	app.coord.SetOnline(context.Background(), true)
	w = app.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	run := decode[entities.SyncRun](t, w)
	assert.Equal(t, entities.SyncTriggerManual, run.Trigger)
	assert.Equal(t, entities.SyncStatusCompleted, run.Status)
	require.Len(t, app.srv.Books(), 1)

	runs := decode[map[string][]entities.SyncRun](t, app.do(t, http.MethodGet, "/api/sync/runs?limit=5", nil))
	assert.Len(t, runs["runs"], 2)

	notices := decode[map[string][]catalogsync.Notice](t, app.do(t, http.MethodGet, "/api/notices?limit=10", nil))
	assert.NotEmpty(t, notices["notices"])
}

type fakeQueue struct {
	enqueued []entities.SyncTrigger
}

func (f *fakeQueue) EnqueueReconcile(trigger entities.SyncTrigger) (string, error) {
	f.enqueued = append(f.enqueued, trigger)
	return "task-1", nil
}

func (f *fakeQueue) Status(_ context.Context, id string) (backlite.TaskStatus, error) {
	if id == "task-1" {
		return backlite.TaskStatusSuccess, nil
	}
	return backlite.TaskStatusNotFound, nil
}

func TestSync_Enqueued(t *testing.T) {
	queue := &fakeQueue{}
	app := setupTestApp(t, func(cfg *RouterConfig) { cfg.TaskClient = queue })

	w := app.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "task-1", decode[map[string]any](t, w)["task_id"])
	assert.Equal(t, []entities.SyncTrigger{entities.SyncTriggerManual}, queue.enqueued)

	status := decode[map[string]string](t, app.do(t, http.MethodGet, "/api/tasks/task-1", nil))
	assert.Equal(t, "success", status["status"])
	status = decode[map[string]string](t, app.do(t, http.MethodGet, "/api/tasks/other", nil))
	assert.Equal(t, "not_found", status["status"])
}

func TestTaskStatusToString(t *testing.T) {
	assert.Equal(t, "pending", taskStatusToString(backlite.TaskStatusPending))
	assert.Equal(t, "running", taskStatusToString(backlite.TaskStatusRunning))
	assert.Equal(t, "failure", taskStatusToString(backlite.TaskStatusFailure))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
