package source

import "time"

// Source kinds.
const (
	KindFactory = "factory"
	KindCloud   = "cloud"
	KindLegacy  = "legacy"
)

// Sync log statuses.
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusPartial    = "partial"
)

// Source is a registered external data origin, usually a per-factory
// store. Name is human-readable ("Factory A"); the store it maps to is
// derived from the name, not stored.
type Source struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SyncLog is the audit record of one sync attempt against a source.
// A row in status in_progress doubles as the attempt's advisory lock.
type SyncLog struct {
	ID               string    `json:"id"`
	SourceID         string    `json:"source_id"`
	Timestamp        time.Time `json:"timestamp"`
	Status           string    `json:"status"`
	RecordsProcessed int       `json:"records_processed"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}
