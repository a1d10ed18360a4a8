package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncLogRepository defines persistence for sync audit records. Logs
// live only in the canonical store.
type SyncLogRepository interface {
	// Create inserts a new log row, normally in status in_progress.
	Create(ctx context.Context, log *SyncLog) error

	// Finalize moves a log row to its terminal status with its counters.
	Finalize(ctx context.Context, id, status string, records int, errMsg string) error

	// Latest retrieves the most recent log row for a source.
	// Returns ErrLogNotFound if the source has never been synced.
	Latest(ctx context.Context, sourceID string) (*SyncLog, error)

	// ListBySource retrieves up to limit log rows for a source, newest first.
	ListBySource(ctx context.Context, sourceID string, limit int) ([]SyncLog, error)

	// HasActiveSince reports whether an in_progress row newer than cutoff
	// exists for the source. Older in_progress rows are treated as stale
	// leftovers of a crashed attempt and do not block.
	HasActiveSince(ctx context.Context, sourceID string, cutoff time.Time) (bool, error)
}

// SQLiteSyncLogRepository implements SyncLogRepository using SQLite.
type SQLiteSyncLogRepository struct {
	db *sql.DB
}

// NewSQLiteSyncLogRepository creates a new SQLite-backed sync log repository.
func NewSQLiteSyncLogRepository(db *sql.DB) *SQLiteSyncLogRepository {
	return &SQLiteSyncLogRepository{db: db}
}

const syncLogColumns = "id, source_id, timestamp, status, records_processed, error_message"

// Create inserts a new log row.
func (r *SQLiteSyncLogRepository) Create(ctx context.Context, log *SyncLog) error {
	if log.ID == "" {
		log.ID = "log-" + uuid.NewString()[:8]
	}
	if log.Status == "" {
		log.Status = StatusInProgress
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_logs (id, source_id, timestamp, status, records_processed, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID, log.SourceID, log.Timestamp.Format(time.RFC3339),
		log.Status, log.RecordsProcessed, log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("inserting sync log for %s: %w", log.SourceID, err)
	}
	return nil
}

// Finalize moves a log row to its terminal status with its counters.
func (r *SQLiteSyncLogRepository) Finalize(ctx context.Context, id, status string, records int, errMsg string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE sync_logs SET status = ?, records_processed = ?, error_message = ? WHERE id = ?",
		status, records, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("finalizing sync log %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking finalize result: %w", err)
	}
	if affected == 0 {
		return ErrLogNotFound
	}
	return nil
}

// Latest retrieves the most recent log row for a source.
func (r *SQLiteSyncLogRepository) Latest(ctx context.Context, sourceID string) (*SyncLog, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+syncLogColumns+" FROM sync_logs WHERE source_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1",
		sourceID)

	log, err := scanSyncLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLogNotFound
		}
		return nil, fmt.Errorf("querying latest sync log: %w", err)
	}
	return log, nil
}

// ListBySource retrieves up to limit log rows for a source, newest first.
func (r *SQLiteSyncLogRepository) ListBySource(ctx context.Context, sourceID string, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+syncLogColumns+" FROM sync_logs WHERE source_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?",
		sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync logs: %w", err)
	}
	defer rows.Close()

	var logs []SyncLog
	for rows.Next() {
		log, err := scanSyncLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sync log: %w", err)
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync logs: %w", err)
	}
	return logs, nil
}

// HasActiveSince reports whether a fresh in_progress row exists.
func (r *SQLiteSyncLogRepository) HasActiveSince(ctx context.Context, sourceID string, cutoff time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_logs WHERE source_id = ? AND status = ? AND timestamp > ?",
		sourceID, StatusInProgress, cutoff.UTC().Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking active sync for %s: %w", sourceID, err)
	}
	return count > 0, nil
}

func scanSyncLog(scanner rowScanner) (*SyncLog, error) {
	var log SyncLog
	var timestamp string

	err := scanner.Scan(&log.ID, &log.SourceID, &timestamp, &log.Status, &log.RecordsProcessed, &log.ErrorMessage)
	if err != nil {
		return nil, err
	}
	if log.Timestamp, err = time.Parse(time.RFC3339, timestamp); err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	return &log, nil
}
