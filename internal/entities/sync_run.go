package entities

import (
	"time"
)

type SyncTrigger string

const (
	SyncTriggerReconnect SyncTrigger = "reconnect"
	SyncTriggerManual    SyncTrigger = "manual"
	SyncTriggerTask      SyncTrigger = "task"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncRun is the persisted report of one catalog reconciliation.
type SyncRun struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Trigger      SyncTrigger `gorm:"size:20" json:"trigger"`
	Status       SyncStatus  `gorm:"size:20;index" json:"status"`
	RemoteBooks  int         `json:"remote_books"`
	LocalBooks   int         `json:"local_books"`
	AddedLocal   int         `json:"added_local"`
	UpdatedLocal int         `json:"updated_local"`
	Pushed       int         `json:"pushed"`
	PushedFields int         `json:"pushed_fields"`
	CoverUploads int         `json:"cover_uploads"`
	FileUploads  int         `json:"file_uploads"`
	Failed       int         `json:"failed"`
	Error        string      `gorm:"type:text" json:"error,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// Mutations counts the writes a run performed on either catalog.
func (r *SyncRun) Mutations() int {
	return r.AddedLocal + r.UpdatedLocal + r.Pushed + r.PushedFields + r.CoverUploads + r.FileUploads
}
