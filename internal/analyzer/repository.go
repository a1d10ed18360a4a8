package analyzer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Repository defines the interface for analyzer persistence operations.
// An implementation is bound to one physical store.
type Repository interface {
	// GetByID retrieves an analyzer by device id.
	// Returns ErrAnalyzerNotFound if the device does not exist.
	GetByID(ctx context.Context, deviceID string) (*Analyzer, error)

	// List retrieves all analyzers ordered by device id.
	List(ctx context.Context) ([]Analyzer, error)

	// Create inserts a new analyzer. Returns ErrAnalyzerExists if the
	// device id is already present.
	Create(ctx context.Context, a *Analyzer) error

	// Update rewrites an existing analyzer row.
	// Returns ErrAnalyzerNotFound if the device does not exist.
	Update(ctx context.Context, a *Analyzer) error
}

// SQLiteRepository implements Repository using SQLite.
//
// Source stores created by early factory software predate the
// owning_source column. The repository probes the schema once and
// reads/writes around the missing column, reporting OwningSource as
// empty for those stores.
type SQLiteRepository struct {
	db *sql.DB

	probeOnce    sync.Once
	probeErr     error
	hasOwningCol bool
}

// NewSQLiteRepository creates a new SQLite-backed analyzer repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// hasOwningSource reports whether the analyzers table carries the
// owning_source column, probing the schema on first use.
func (r *SQLiteRepository) hasOwningSource(ctx context.Context) (bool, error) {
	r.probeOnce.Do(func() {
		rows, err := r.db.QueryContext(ctx, "PRAGMA table_info(analyzers)")
		if err != nil {
			r.probeErr = fmt.Errorf("probing analyzers schema: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var cid int
			var name, colType string
			var notNull, pk int
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
				r.probeErr = fmt.Errorf("scanning analyzers schema: %w", err)
				return
			}
			if name == "owning_source" {
				r.hasOwningCol = true
			}
		}
		r.probeErr = rows.Err()
	})
	return r.hasOwningCol, r.probeErr
}

func (r *SQLiteRepository) columns(ctx context.Context) (string, error) {
	base := "device_id, device_type, status, last_calibration, next_calibration_due, location, manufacturing_date, technician_id, created_at, updated_at"
	hasOwning, err := r.hasOwningSource(ctx)
	if err != nil {
		return "", err
	}
	if hasOwning {
		return base + ", owning_source", nil
	}
	return base, nil
}

// GetByID retrieves an analyzer by device id.
func (r *SQLiteRepository) GetByID(ctx context.Context, deviceID string) (*Analyzer, error) {
	cols, err := r.columns(ctx)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx,
		"SELECT "+cols+" FROM analyzers WHERE device_id = ?", deviceID)
	a, err := r.scanAnalyzer(row, strings.Contains(cols, "owning_source"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnalyzerNotFound
		}
		return nil, fmt.Errorf("querying analyzer %s: %w", deviceID, err)
	}
	return a, nil
}

// List retrieves all analyzers ordered by device id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Analyzer, error) {
	cols, err := r.columns(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+cols+" FROM analyzers ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("listing analyzers: %w", err)
	}
	defer rows.Close()

	withOwning := strings.Contains(cols, "owning_source")
	var out []Analyzer
	for rows.Next() {
		a, err := r.scanAnalyzer(rows, withOwning)
		if err != nil {
			return nil, fmt.Errorf("scanning analyzer: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analyzers: %w", err)
	}
	return out, nil
}

// Create inserts a new analyzer.
func (r *SQLiteRepository) Create(ctx context.Context, a *Analyzer) error {
	if a.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if a.DeviceType == "" {
		a.DeviceType = "core"
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	a.deriveCalibration()

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	hasOwning, err := r.hasOwningSource(ctx)
	if err != nil {
		return err
	}

	query := `INSERT INTO analyzers (device_id, device_type, status, last_calibration, next_calibration_due, location, manufacturing_date, technician_id, created_at, updated_at`
	placeholders := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
	args := []any{
		a.DeviceID, a.DeviceType, a.Status,
		nullableTime(a.LastCalibration), nullableTime(a.NextCalibrationDue),
		a.Location, a.ManufacturingDate.Format(time.RFC3339),
		nullableString(a.TechnicianID),
		a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339),
	}
	if hasOwning {
		query += ", owning_source"
		placeholders += ", ?"
		args = append(args, nullableString(a.OwningSource))
	}
	query += ") VALUES (" + placeholders + ")"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			return ErrAnalyzerExists
		}
		return fmt.Errorf("inserting analyzer %s: %w", a.DeviceID, err)
	}
	return nil
}

// Update rewrites an existing analyzer row.
func (r *SQLiteRepository) Update(ctx context.Context, a *Analyzer) error {
	if a.DeviceID == "" {
		return ErrMissingDeviceID
	}
	a.deriveCalibration()
	a.UpdatedAt = time.Now().UTC()

	hasOwning, err := r.hasOwningSource(ctx)
	if err != nil {
		return err
	}

	query := `UPDATE analyzers SET device_type = ?, status = ?, last_calibration = ?, next_calibration_due = ?, location = ?, manufacturing_date = ?, technician_id = ?, updated_at = ?`
	args := []any{
		a.DeviceType, a.Status,
		nullableTime(a.LastCalibration), nullableTime(a.NextCalibrationDue),
		a.Location, a.ManufacturingDate.Format(time.RFC3339),
		nullableString(a.TechnicianID),
		a.UpdatedAt.Format(time.RFC3339),
	}
	if hasOwning {
		query += ", owning_source = ?"
		args = append(args, nullableString(a.OwningSource))
	}
	query += " WHERE device_id = ?"
	args = append(args, a.DeviceID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating analyzer %s: %w", a.DeviceID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrAnalyzerNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scanAnalyzer(scanner rowScanner, withOwning bool) (*Analyzer, error) {
	var a Analyzer
	var lastCal, nextDue, techID, owning sql.NullString
	var manufactured, createdAt, updatedAt string

	dest := []any{
		&a.DeviceID, &a.DeviceType, &a.Status,
		&lastCal, &nextDue,
		&a.Location, &manufactured, &techID,
		&createdAt, &updatedAt,
	}
	if withOwning {
		dest = append(dest, &owning)
	}
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if a.ManufacturingDate, err = time.Parse(time.RFC3339, manufactured); err != nil {
		return nil, fmt.Errorf("parsing manufacturing_date: %w", err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if a.LastCalibration, err = parseNullableTime(lastCal); err != nil {
		return nil, fmt.Errorf("parsing last_calibration: %w", err)
	}
	if a.NextCalibrationDue, err = parseNullableTime(nextDue); err != nil {
		return nil, fmt.Errorf("parsing next_calibration_due: %w", err)
	}
	if techID.Valid {
		a.TechnicianID = techID.String
	}
	if owning.Valid {
		a.OwningSource = owning.String
	}
	return &a, nil
}

// nullableString converts an empty string to nil for NULL storage.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime converts a nil time pointer to nil for NULL storage.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
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
