package testrun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Repository defines persistence for runs and their metrics. An
// implementation is bound to one physical store.
type Repository interface {
	// GetRun retrieves a run by run id.
	// Returns ErrRunNotFound if the run does not exist.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRunsByDevice retrieves all runs for a device, newest first.
	ListRunsByDevice(ctx context.Context, deviceID string) ([]Run, error)

	// CreateRun inserts a new run. Returns ErrRunExists if the run id
	// is already present.
	CreateRun(ctx context.Context, run *Run) error

	// GetMetric retrieves the metric of the given kind for a run.
	// Returns ErrMetricNotFound if absent.
	GetMetric(ctx context.Context, runID, kind string) (*Metric, error)

	// ListMetrics retrieves all metrics for a run ordered by kind.
	ListMetrics(ctx context.Context, runID string) ([]Metric, error)

	// CreateMetric inserts a metric and, when the value is out of range,
	// marks the parent run abnormal in the same transaction.
	// Returns ErrMetricExists if the run already has a metric of this kind.
	CreateMetric(ctx context.Context, m *Metric) error
}

// SQLiteRepository implements Repository using SQLite.
//
// Source stores created by early factory software predate the
// owning_source column on test_runs. The repository probes the schema
// once and reads/writes around the missing column, reporting
// OwningSource as empty for those stores.
type SQLiteRepository struct {
	db *sql.DB

	probeOnce    sync.Once
	probeErr     error
	hasOwningCol bool
}

// NewSQLiteRepository creates a new SQLite-backed run repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// hasOwningSource reports whether the test_runs table carries the
// owning_source column, probing the schema on first use.
func (r *SQLiteRepository) hasOwningSource(ctx context.Context) (bool, error) {
	r.probeOnce.Do(func() {
		rows, err := r.db.QueryContext(ctx, "PRAGMA table_info(test_runs)")
		if err != nil {
			r.probeErr = fmt.Errorf("probing test_runs schema: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var cid int
			var name, colType string
			var notNull, pk int
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
				r.probeErr = fmt.Errorf("scanning test_runs schema: %w", err)
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

func (r *SQLiteRepository) runColumns(ctx context.Context) (string, error) {
	base := "run_id, device_id, run_kind, timestamp, is_abnormal, is_factory_data, executed_by, notes"
	hasOwning, err := r.hasOwningSource(ctx)
	if err != nil {
		return "", err
	}
	if hasOwning {
		return base + ", owning_source", nil
	}
	return base, nil
}

// GetRun retrieves a run by run id.
func (r *SQLiteRepository) GetRun(ctx context.Context, runID string) (*Run, error) {
	cols, err := r.runColumns(ctx)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx,
		"SELECT "+cols+" FROM test_runs WHERE run_id = ?", runID)
	run, err := scanRun(row, strings.Contains(cols, "owning_source"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	return run, nil
}

// ListRunsByDevice retrieves all runs for a device, newest first.
func (r *SQLiteRepository) ListRunsByDevice(ctx context.Context, deviceID string) ([]Run, error) {
	cols, err := r.runColumns(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+cols+" FROM test_runs WHERE device_id = ? ORDER BY timestamp DESC, run_id",
		deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing runs for device %s: %w", deviceID, err)
	}
	defer rows.Close()

	withOwning := strings.Contains(cols, "owning_source")
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows, withOwning)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// CreateRun inserts a new run.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.RunKind == "" {
		run.RunKind = KindProduction
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}

	hasOwning, err := r.hasOwningSource(ctx)
	if err != nil {
		return err
	}

	query := `INSERT INTO test_runs (run_id, device_id, run_kind, timestamp, is_abnormal, is_factory_data, executed_by, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		run.RunID, run.DeviceID, run.RunKind,
		run.Timestamp.Format(time.RFC3339),
		boolToInt(run.IsAbnormal), boolToInt(run.IsFactoryData),
		nullableString(run.ExecutedBy), run.Notes,
	}
	if hasOwning {
		query = `INSERT INTO test_runs (run_id, device_id, run_kind, timestamp, is_abnormal, is_factory_data, executed_by, notes, owning_source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		args = append(args, nullableString(run.OwningSource))
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueConstraintError(err) {
			return ErrRunExists
		}
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// GetMetric retrieves the metric of the given kind for a run.
func (r *SQLiteRepository) GetMetric(ctx context.Context, runID, kind string) (*Metric, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, run_id, kind, value, expected_min, expected_max
		 FROM test_metrics WHERE run_id = ? AND kind = ?`, runID, kind)

	var m Metric
	err := row.Scan(&m.ID, &m.RunID, &m.Kind, &m.Value, &m.ExpectedMin, &m.ExpectedMax)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMetricNotFound
		}
		return nil, fmt.Errorf("querying metric %s/%s: %w", runID, kind, err)
	}
	return &m, nil
}

// ListMetrics retrieves all metrics for a run ordered by kind.
func (r *SQLiteRepository) ListMetrics(ctx context.Context, runID string) ([]Metric, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, kind, value, expected_min, expected_max
		 FROM test_metrics WHERE run_id = ? ORDER BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing metrics for run %s: %w", runID, err)
	}
	defer rows.Close()

	var metrics []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ID, &m.RunID, &m.Kind, &m.Value, &m.ExpectedMin, &m.ExpectedMax); err != nil {
			return nil, fmt.Errorf("scanning metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metrics: %w", err)
	}
	return metrics, nil
}

// CreateMetric inserts a metric and propagates the abnormal flag to the
// parent run atomically.
func (r *SQLiteRepository) CreateMetric(ctx context.Context, m *Metric) error {
	if m.ExpectedMax <= m.ExpectedMin {
		return ErrInvalidRange
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning metric transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO test_metrics (run_id, kind, value, expected_min, expected_max)
		 VALUES (?, ?, ?, ?, ?)`,
		m.RunID, m.Kind, m.Value, m.ExpectedMin, m.ExpectedMax,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrMetricExists
		}
		return fmt.Errorf("inserting metric %s/%s: %w", m.RunID, m.Kind, err)
	}
	if m.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("reading metric id: %w", err)
	}

	if m.OutOfRange() {
		if _, err := tx.ExecContext(ctx,
			"UPDATE test_runs SET is_abnormal = 1 WHERE run_id = ?", m.RunID); err != nil {
			return fmt.Errorf("flagging run %s abnormal: %w", m.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing metric transaction: %w", err)
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner, withOwning bool) (*Run, error) {
	var run Run
	var timestamp string
	var isAbnormal, isFactory int
	var owning, executedBy sql.NullString

	dest := []any{
		&run.RunID, &run.DeviceID, &run.RunKind,
		&timestamp, &isAbnormal, &isFactory,
		&executedBy, &run.Notes,
	}
	if withOwning {
		dest = append(dest, &owning)
	}
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	run.IsAbnormal = isAbnormal != 0
	run.IsFactoryData = isFactory != 0
	if owning.Valid {
		run.OwningSource = owning.String
	}
	if executedBy.Valid {
		run.ExecutedBy = executedBy.String
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	run.Timestamp = ts
	return &run, nil
}

// nullableString converts an empty string to nil for NULL storage.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
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
