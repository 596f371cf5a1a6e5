package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.SyncState, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/api/status", health.Ping)

	if cfg.Catalog != nil {
		booksController := NewBooksController(cfg.Catalog, cfg.MaxUploadBytes)
		router.GET("/api/library", booksController.List)
		router.POST("/api/library/import", booksController.Import)
		router.GET("/api/library/:id", booksController.Get)
		router.PATCH("/api/library/:id", booksController.Update)
		router.DELETE("/api/library/:id", booksController.Delete)
		router.POST("/api/library/:id/cover-loan", booksController.CoverLoan)
	}

	if cfg.Sessions != nil {
		readerController := NewReaderController(cfg.Sessions)
		router.POST("/api/library/:id/open", readerController.Open)
		router.GET("/api/sessions/:sid/chapters", readerController.Chapters)
		router.POST("/api/sessions/:sid/more", readerController.LoadMore)
		router.POST("/api/sessions/:sid/scroll", readerController.Scroll)
		router.POST("/api/sessions/:sid/resume", readerController.Resume)
		router.DELETE("/api/sessions/:sid", readerController.Close)
	}

	if cfg.Loans != nil {
		blobsController := NewBlobsController(cfg.Loans)
		router.GET("/blobs/:token", blobsController.Get)
		router.DELETE("/blobs/:token", blobsController.Revoke)
	}

	syncController := NewSyncController(cfg.Reconciler, cfg.SyncRuns, cfg.TaskClient, cfg.Notices)
	router.POST("/api/sync", syncController.Sync)
	router.GET("/api/sync/runs", syncController.Runs)
	router.GET("/api/notices", syncController.Notices)

	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient)
		router.GET("/api/tasks/:id", tasksController.GetTaskStatus)
	}

	return router
}
