package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Sync    *SyncStateInfo    `json:"sync,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// SyncStateInfo reports the coordinator state.
type SyncStateInfo struct {
	State           string `json:"state"`
	Online          bool   `json:"online"`
	RemoteAvailable bool   `json:"remote_available"`
}

type HealthController struct {
	db      Pinger
	sync    SyncState
	version string
}

func NewHealthController(db Pinger, sync SyncState, version string) *HealthController {
	return &HealthController{
		db:      db,
		sync:    sync,
		version: version,
	}
}

// Status handles GET /health. Remote unavailability is reported but never
// makes the engine unhealthy; only the local store does.
func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}
	if h.sync != nil {
		health.Sync = &SyncStateInfo{
			State:           string(h.sync.State()),
			Online:          h.sync.Online(),
			RemoteAvailable: h.sync.RemoteAvailable(),
		}
		if health.Sync.RemoteAvailable {
			checks["remote"] = "ok"
		} else {
			checks["remote"] = "unavailable"
		}
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}

// Ping handles GET /api/status with the same "OK" body the remote catalog
// service answers, so the engine can stand in for it in health checks.
func (h *HealthController) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, "OK")
}
