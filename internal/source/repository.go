package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for registered data sources. Sources
// live only in the canonical store.
type Repository interface {
	// GetByID retrieves a source by id.
	// Returns ErrSourceNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Source, error)

	// GetByName retrieves a source by its registered name.
	// Returns ErrSourceNotFound if it does not exist.
	GetByName(ctx context.Context, name string) (*Source, error)

	// List retrieves all sources ordered by name.
	List(ctx context.Context) ([]Source, error)

	// Create registers a new source. The ID is generated if empty.
	// Returns ErrSourceExists if the name is taken.
	Create(ctx context.Context, src *Source) error

	// Update rewrites a source's kind and active flag.
	Update(ctx context.Context, src *Source) error

	// SetLastSync records the completion time of the latest sync that moved
	// or confirmed data (success or partial).
	SetLastSync(ctx context.Context, id string, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed source repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sourceColumns = "id, name, kind, last_sync_time, is_active, created_at, updated_at"

// GetByID retrieves a source by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Source, error) {
	return r.getSource(ctx, "SELECT "+sourceColumns+" FROM data_sources WHERE id = ?", id)
}

// GetByName retrieves a source by its registered name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Source, error) {
	return r.getSource(ctx, "SELECT "+sourceColumns+" FROM data_sources WHERE name = ?", name)
}

// List retrieves all sources ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Source, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sourceColumns+" FROM data_sources ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		sources = append(sources, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// Create registers a new source.
func (r *SQLiteRepository) Create(ctx context.Context, src *Source) error {
	if src.ID == "" {
		src.ID = "src-" + uuid.NewString()[:8]
	}
	if src.Kind == "" {
		src.Kind = KindFactory
	}

	now := time.Now().UTC()
	if src.CreatedAt.IsZero() {
		src.CreatedAt = now
	}
	src.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO data_sources (id, name, kind, last_sync_time, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, src.Kind,
		nullableTime(src.LastSyncTime), boolToInt(src.IsActive),
		src.CreatedAt.Format(time.RFC3339), src.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSourceExists
		}
		return fmt.Errorf("inserting source %s: %w", src.Name, err)
	}
	return nil
}

// Update rewrites a source's kind and active flag.
func (r *SQLiteRepository) Update(ctx context.Context, src *Source) error {
	src.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		"UPDATE data_sources SET kind = ?, is_active = ?, updated_at = ? WHERE id = ?",
		src.Kind, boolToInt(src.IsActive), src.UpdatedAt.Format(time.RFC3339), src.ID,
	)
	if err != nil {
		return fmt.Errorf("updating source %s: %w", src.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// SetLastSync records the completion time of the latest sync that moved
// or confirmed data (success or partial).
func (r *SQLiteRepository) SetLastSync(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE data_sources SET last_sync_time = ?, updated_at = ? WHERE id = ?",
		at.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("recording last sync for %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func (r *SQLiteRepository) getSource(ctx context.Context, query string, args ...any) (*Source, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("querying source: %w", err)
	}
	return src, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(scanner rowScanner) (*Source, error) {
	var src Source
	var lastSync sql.NullString
	var isActive int
	var createdAt, updatedAt string

	err := scanner.Scan(&src.ID, &src.Name, &src.Kind, &lastSync, &isActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	src.IsActive = isActive != 0
	if lastSync.Valid && lastSync.String != "" {
		t, err := time.Parse(time.RFC3339, lastSync.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_sync_time: %w", err)
		}
		src.LastSyncTime = &t
	}
	if src.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if src.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &src, nil
}

// nullableTime converts a nil time pointer to nil for NULL storage.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
