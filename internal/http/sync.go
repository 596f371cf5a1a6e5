package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/epubshelf/internal/catalogsync"
	"github.com/mrlokans/epubshelf/internal/entities"
)

// SyncController triggers reconciliations and reports on them.
type SyncController struct {
	reconciler Reconciler
	runs       RunHistory
	tasks      TaskQueue
	notices    NoticeSource
}

func NewSyncController(reconciler Reconciler, runs RunHistory, tasks TaskQueue, notices NoticeSource) *SyncController {
	return &SyncController{reconciler: reconciler, runs: runs, tasks: tasks, notices: notices}
}

// Sync handles POST /api/sync. With a task queue the reconciliation is
// enqueued; otherwise it runs inline and its report is returned.
func (sc *SyncController) Sync(c *gin.Context) {
	if sc.tasks != nil {
		id, err := sc.tasks.EnqueueReconcile(entities.SyncTriggerManual)
		if err != nil {
			respondInternalError(c, err, "enqueue reconciliation")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"task_id": id,
			"message": "reconciliation enqueued",
		})
		return
	}

	if sc.reconciler == nil {
		respondError(c, http.StatusServiceUnavailable, "sync_disabled", "synchronization is not configured")
		return
	}
	run, err := sc.reconciler.ReconcileCatalogs(c.Request.Context(), entities.SyncTriggerManual)
	if errors.Is(err, catalogsync.ErrOffline) {
		respondError(c, http.StatusConflict, "offline", catalogsync.MsgOffline)
		return
	}
	if run == nil {
		respondInternalError(c, err, "reconcile")
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	c.JSON(status, run)
}

// Runs handles GET /api/sync/runs?limit=
func (sc *SyncController) Runs(c *gin.Context) {
	if sc.runs == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []entities.SyncRun{}})
		return
	}
	limit, ok := parseIntQuery(c, "limit", 20)
	if !ok {
		return
	}
	runs, err := sc.runs.List(limit)
	if err != nil {
		respondInternalError(c, err, "list sync runs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Notices handles GET /api/notices?limit=
func (sc *SyncController) Notices(c *gin.Context) {
	if sc.notices == nil {
		c.JSON(http.StatusOK, gin.H{"notices": []catalogsync.Notice{}})
		return
	}
	limit, ok := parseIntQuery(c, "limit", 20)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"notices": sc.notices.Recent(limit)})
}
