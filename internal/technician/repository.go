package technician

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for technician persistence operations.
// Implementations are bound to a single physical store; the same schema
// exists in the canonical store and in every source store.
type Repository interface {
	// GetByID retrieves a technician by their unique identifier.
	// Returns ErrTechnicianNotFound if the technician does not exist.
	GetByID(ctx context.Context, id string) (*Technician, error)

	// GetByUsername retrieves a technician by username.
	// Returns ErrTechnicianNotFound if the username does not exist.
	GetByUsername(ctx context.Context, username string) (*Technician, error)

	// List retrieves all technicians ordered by username.
	List(ctx context.Context) ([]Technician, error)

	// Create inserts a new technician. The ID is generated if empty.
	// Returns ErrUsernameExists if the username is already taken.
	Create(ctx context.Context, tech *Technician) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed technician repository.
// The db parameter should be an open connection to the target store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const technicianColumns = "id, username, email, first_name, last_name, is_staff, is_active, created_at, updated_at"

// GetByID retrieves a technician by their unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Technician, error) {
	return r.getTechnician(ctx,
		"SELECT "+technicianColumns+" FROM technicians WHERE id = ?", id)
}

// GetByUsername retrieves a technician by username.
func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*Technician, error) {
	return r.getTechnician(ctx,
		"SELECT "+technicianColumns+" FROM technicians WHERE username = ?", username)
}

// List retrieves all technicians ordered by username.
func (r *SQLiteRepository) List(ctx context.Context) ([]Technician, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+technicianColumns+" FROM technicians ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("listing technicians: %w", err)
	}
	defer rows.Close()

	var techs []Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning technician: %w", err)
		}
		techs = append(techs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating technicians: %w", err)
	}
	return techs, nil
}

// Create inserts a new technician. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, tech *Technician) error {
	if tech.ID == "" {
		tech.ID = "tech-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC()
	if tech.CreatedAt.IsZero() {
		tech.CreatedAt = now
	}
	tech.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO technicians (id, username, email, first_name, last_name, is_staff, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tech.ID, tech.Username, tech.Email, tech.FirstName, tech.LastName,
		boolToInt(tech.IsStaff), boolToInt(tech.IsActive),
		tech.CreatedAt.Format(time.RFC3339), tech.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting technician: %w", err)
	}

	return nil
}

// getTechnician executes a single-row query and scans the result.
func (r *SQLiteRepository) getTechnician(ctx context.Context, query string, args ...any) (*Technician, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	t, err := scanTechnician(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTechnicianNotFound
		}
		return nil, fmt.Errorf("querying technician: %w", err)
	}
	return t, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTechnician scans a row or rows result into a Technician.
func scanTechnician(scanner rowScanner) (*Technician, error) {
	var t Technician
	var isStaff, isActive int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&t.ID,
		&t.Username,
		&t.Email,
		&t.FirstName,
		&t.LastName,
		&isStaff,
		&isActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.IsStaff = isStaff != 0
	t.IsActive = isActive != 0

	var parseErr error
	t.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	t.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &t, nil
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
