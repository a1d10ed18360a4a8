package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitalone/vitalsync/internal/analyzer"
	"github.com/vitalone/vitalsync/internal/infrastructure/config"
	"github.com/vitalone/vitalsync/internal/infrastructure/database"
	"github.com/vitalone/vitalsync/internal/infrastructure/logging"
	"github.com/vitalone/vitalsync/internal/routing"
	"github.com/vitalone/vitalsync/internal/source"
	"github.com/vitalone/vitalsync/internal/technician"
	"github.com/vitalone/vitalsync/internal/testrun"

	_ "github.com/vitalone/vitalsync/migrations"
)

// fixture holds a fully migrated canonical store plus source stores.
type fixture struct {
	stores  *database.Manager
	sources *source.SQLiteRepository
	logs    *source.SQLiteSyncLogRepository
	service *Service
}

// setupFixture opens file-backed stores in a temp dir for the named
// sources and migrates all of them.
func setupFixture(t *testing.T, opts Options, sourceNames ...string) *fixture {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DatabaseConfig{
		Path:        filepath.Join(dir, "canonical.db"),
		BusyTimeout: 5,
	}
	for _, name := range sourceNames {
		cfg.Sources = append(cfg.Sources, config.SourceStoreConfig{
			Name: name,
			Path: filepath.Join(dir, string(routing.StoreIDForSource(name))+".db"),
		})
	}

	stores, err := database.OpenAll(cfg)
	if err != nil {
		t.Fatalf("failed to open stores: %v", err)
	}
	t.Cleanup(func() { stores.Close() })

	if err := stores.MigrateAll(context.Background()); err != nil {
		t.Fatalf("failed to migrate stores: %v", err)
	}

	canonical := stores.Canonical()
	sources := source.NewSQLiteRepository(canonical.DB)
	logs := source.NewSQLiteSyncLogRepository(canonical.DB)
	merger := NewMerger(
		analyzer.NewSQLiteRepository(canonical.DB),
		testrun.NewSQLiteRepository(canonical.DB),
		technician.NewReconciler(technician.NewSQLiteRepository(canonical.DB)),
	)
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")

	return &fixture{
		stores:  stores,
		sources: sources,
		logs:    logs,
		service: NewService(stores, sources, logs, merger, logger, opts),
	}
}

// registerSource creates the data_sources row for a configured store.
func (f *fixture) registerSource(t *testing.T, name string, active bool) *source.Source {
	t.Helper()
	src := &source.Source{Name: name, IsActive: active}
	if err := f.sources.Create(context.Background(), src); err != nil {
		t.Fatalf("register source %s: %v", name, err)
	}
	return src
}

// seedFactory fills a source store with one technician, one device and
// one run carrying the given metrics.
func (f *fixture) seedFactory(t *testing.T, name, deviceID, runID string, metrics []testrun.Metric) string {
	t.Helper()
	ctx := context.Background()

	store, err := f.stores.Store(routing.StoreIDForSource(name))
	if err != nil {
		t.Fatalf("source store for %s: %v", name, err)
	}

	techs := technician.NewSQLiteRepository(store.DB)
	tech := &technician.Technician{Username: "op_" + string(routing.StoreIDForSource(name)), IsActive: true}
	if err := techs.Create(ctx, tech); err != nil {
		t.Fatalf("seed technician: %v", err)
	}

	analyzers := analyzer.NewSQLiteRepository(store.DB)
	if err := analyzers.Create(ctx, &analyzer.Analyzer{
		DeviceID:          deviceID,
		Location:          "line 1",
		ManufacturingDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seed analyzer: %v", err)
	}

	runs := testrun.NewSQLiteRepository(store.DB)
	if err := runs.CreateRun(ctx, &testrun.Run{
		RunID:      runID,
		DeviceID:   deviceID,
		RunKind:    testrun.KindQC,
		Timestamp:  time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC),
		ExecutedBy: tech.ID,
	}); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	for i := range metrics {
		m := metrics[i]
		m.RunID = runID
		if err := runs.CreateMetric(ctx, &m); err != nil {
			t.Fatalf("seed metric %s: %v", m.Kind, err)
		}
	}
	return tech.ID
}

func TestSyncSourceMergesFactoryData(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	f.registerSource(t, "Factory A", true)
	sourceTechID := f.seedFactory(t, "Factory A", "FA-001", "TR-1", []testrun.Metric{
		{Kind: testrun.MetricHemoglobin, Value: 25.0, ExpectedMin: 12.0, ExpectedMax: 17.5},
		{Kind: testrun.MetricGlucose, Value: 5.1, ExpectedMin: 3.9, ExpectedMax: 7.8},
	})
	ctx := context.Background()

	log, err := f.service.SyncSource(ctx, "Factory A")
	if err != nil {
		t.Fatalf("SyncSource failed: %v", err)
	}
	if log.Status != source.StatusSuccess {
		t.Fatalf("Status = %q, want %q (error: %s)", log.Status, source.StatusSuccess, log.ErrorMessage)
	}
	if log.RecordsProcessed != 2 {
		t.Errorf("RecordsProcessed = %d, want 2", log.RecordsProcessed)
	}

	canonical := f.stores.Canonical().DB

	device, err := analyzer.NewSQLiteRepository(canonical).GetByID(ctx, "FA-001")
	if err != nil {
		t.Fatalf("canonical device missing: %v", err)
	}
	if device.OwningSource != "factory_a" {
		t.Errorf("OwningSource = %q, want %q", device.OwningSource, "factory_a")
	}

	runs := testrun.NewSQLiteRepository(canonical)
	run, err := runs.GetRun(ctx, "TR-1")
	if err != nil {
		t.Fatalf("canonical run missing: %v", err)
	}
	if !run.IsFactoryData {
		t.Error("merged run should be flagged as factory data")
	}
	if !run.IsAbnormal {
		t.Error("out-of-range hemoglobin should mark the canonical run abnormal")
	}
	if run.ExecutedBy == "" || run.ExecutedBy == sourceTechID {
		t.Errorf("ExecutedBy = %q, want a distinct canonical technician id", run.ExecutedBy)
	}

	metrics, err := runs.ListMetrics(ctx, "TR-1")
	if err != nil {
		t.Fatalf("listing canonical metrics: %v", err)
	}
	if len(metrics) != 2 {
		t.Errorf("expected 2 canonical metrics, got %d", len(metrics))
	}

	src, err := f.sources.GetByName(ctx, "Factory A")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if src.LastSyncTime == nil {
		t.Error("successful sync should set last_sync_time")
	}
}

func TestSyncSourceIdempotent(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	f.registerSource(t, "Factory A", true)
	f.seedFactory(t, "Factory A", "FA-001", "TR-1", []testrun.Metric{
		{Kind: testrun.MetricHemoglobin, Value: 14.0, ExpectedMin: 12.0, ExpectedMax: 17.5},
	})
	ctx := context.Background()

	first, err := f.service.SyncSource(ctx, "Factory A")
	if err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if first.RecordsProcessed != 1 {
		t.Fatalf("first sync RecordsProcessed = %d, want 1", first.RecordsProcessed)
	}

	second, err := f.service.SyncSource(ctx, "Factory A")
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if second.Status != source.StatusSuccess || second.RecordsProcessed != 0 {
		t.Errorf("second sync = %s/%d, want success with 0 new records", second.Status, second.RecordsProcessed)
	}

	canonical := f.stores.Canonical().DB
	techs, err := technician.NewSQLiteRepository(canonical).List(ctx)
	if err != nil {
		t.Fatalf("listing canonical technicians: %v", err)
	}
	if len(techs) != 1 {
		t.Errorf("expected 1 canonical technician after replay, got %d", len(techs))
	}

	var metricCount int
	if err := canonical.QueryRow("SELECT COUNT(*) FROM test_metrics").Scan(&metricCount); err != nil {
		t.Fatalf("counting metrics: %v", err)
	}
	if metricCount != 1 {
		t.Errorf("expected 1 canonical metric after replay, got %d", metricCount)
	}
}

func TestSyncSourceRefreshesDevice(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	f.registerSource(t, "Factory A", true)
	sourceTechID := f.seedFactory(t, "Factory A", "FA-001", "TR-1", []testrun.Metric{
		{Kind: testrun.MetricHemoglobin, Value: 14.0, ExpectedMin: 12.0, ExpectedMax: 17.5},
	})
	ctx := context.Background()

	if _, err := f.service.SyncSource(ctx, "Factory A"); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// The factory store moves on: the device goes into maintenance,
	// gets calibrated, changes location and gains an owning technician.
	store, err := f.stores.Store("factory_a")
	if err != nil {
		t.Fatalf("source store: %v", err)
	}
	sourceAnalyzers := analyzer.NewSQLiteRepository(store.DB)
	dev, err := sourceAnalyzers.GetByID(ctx, "FA-001")
	if err != nil {
		t.Fatalf("source device missing: %v", err)
	}
	calibrated := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	dev.Status = analyzer.StatusMaintenance
	dev.Location = "line 2"
	dev.LastCalibration = &calibrated
	dev.TechnicianID = sourceTechID
	if err := sourceAnalyzers.Update(ctx, dev); err != nil {
		t.Fatalf("updating source device: %v", err)
	}

	if _, err := f.service.SyncSource(ctx, "Factory A"); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	got, err := analyzer.NewSQLiteRepository(f.stores.Canonical().DB).GetByID(ctx, "FA-001")
	if err != nil {
		t.Fatalf("canonical device missing: %v", err)
	}
	if got.Status != analyzer.StatusMaintenance {
		t.Errorf("Status = %q, want %q", got.Status, analyzer.StatusMaintenance)
	}
	if got.Location != "line 2" {
		t.Errorf("Location = %q, want %q", got.Location, "line 2")
	}
	if got.LastCalibration == nil || !got.LastCalibration.Equal(calibrated) {
		t.Errorf("LastCalibration = %v, want %v", got.LastCalibration, calibrated)
	}
	if got.NextCalibrationDue == nil {
		t.Error("NextCalibrationDue should be derived from the new calibration")
	}
	if got.OwningSource != "factory_a" {
		t.Errorf("OwningSource = %q, want %q", got.OwningSource, "factory_a")
	}
	if got.TechnicianID == "" || got.TechnicianID == sourceTechID {
		t.Errorf("TechnicianID = %q, want the canonical technician id", got.TechnicianID)
	}
}

func TestSyncSourceHealsPartialRun(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	f.registerSource(t, "Factory A", true)
	f.seedFactory(t, "Factory A", "FA-001", "TR-1", []testrun.Metric{
		{Kind: testrun.MetricHemoglobin, Value: 14.0, ExpectedMin: 12.0, ExpectedMax: 17.5},
		{Kind: testrun.MetricPlatelets, Value: 250, ExpectedMin: 150, ExpectedMax: 450},
	})
	ctx := context.Background()

	// Canonical already has the device and the run but none of the
	// run's metrics, as left behind by an interrupted earlier attempt.
	canonicalAnalyzers := analyzer.NewSQLiteRepository(f.stores.Canonical().DB)
	if err := canonicalAnalyzers.Create(ctx, &analyzer.Analyzer{
		DeviceID:          "FA-001",
		Location:          "line 1",
		ManufacturingDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		OwningSource:      "factory_a",
	}); err != nil {
		t.Fatalf("seed canonical analyzer: %v", err)
	}
	canonicalRuns := testrun.NewSQLiteRepository(f.stores.Canonical().DB)
	if err := canonicalRuns.CreateRun(ctx, &testrun.Run{
		RunID:         "TR-1",
		DeviceID:      "FA-001",
		RunKind:       testrun.KindQC,
		Timestamp:     time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC),
		IsFactoryData: true,
	}); err != nil {
		t.Fatalf("seed canonical run: %v", err)
	}

	log, err := f.service.SyncSource(ctx, "Factory A")
	if err != nil {
		t.Fatalf("SyncSource failed: %v", err)
	}
	if log.RecordsProcessed != 2 {
		t.Errorf("RecordsProcessed = %d, want 2 back-filled metrics", log.RecordsProcessed)
	}

	metrics, err := canonicalRuns.ListMetrics(ctx, "TR-1")
	if err != nil {
		t.Fatalf("listing canonical metrics: %v", err)
	}
	if len(metrics) != 2 {
		t.Errorf("expected 2 metrics on the healed run, got %d", len(metrics))
	}
}

func TestSyncSourcePartialOnBadSourceData(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	src := f.registerSource(t, "Factory A", true)
	f.seedFactory(t, "Factory A", "FA-001", "TR-1", nil)
	ctx := context.Background()

	// Rebuild the source metrics table without the range check and slip
	// in a row with a collapsed band, as written by buggy factory
	// software. The canonical store still rejects that row on merge.
	store, err := f.stores.Store("factory_a")
	if err != nil {
		t.Fatalf("source store: %v", err)
	}
	if _, err := store.DB.Exec(`
		DROP TABLE test_metrics;
		CREATE TABLE test_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES test_runs(run_id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			value REAL NOT NULL,
			expected_min REAL NOT NULL,
			expected_max REAL NOT NULL,
			UNIQUE (run_id, kind)
		) STRICT;
		INSERT INTO test_metrics (run_id, kind, value, expected_min, expected_max) VALUES
			('TR-1', 'glc', 5.1, 3.9, 7.8),
			('TR-1', 'hgb', 14.0, 15.0, 15.0);`); err != nil {
		t.Fatalf("rewriting source metrics: %v", err)
	}

	log, err := f.service.SyncSource(ctx, "Factory A")
	if err != nil {
		t.Fatalf("SyncSource failed: %v", err)
	}
	if log.Status != source.StatusPartial {
		t.Fatalf("Status = %q, want %q", log.Status, source.StatusPartial)
	}
	if log.ErrorMessage == "" {
		t.Error("partial sync should carry the unit failure in error_message")
	}
	if log.RecordsProcessed != 1 {
		t.Errorf("RecordsProcessed = %d, want 1 surviving metric", log.RecordsProcessed)
	}

	// The healthy records still landed.
	canonicalRuns := testrun.NewSQLiteRepository(f.stores.Canonical().DB)
	if _, err := canonicalRuns.GetRun(ctx, "TR-1"); err != nil {
		t.Fatalf("canonical run missing after partial sync: %v", err)
	}
	if _, err := canonicalRuns.GetMetric(ctx, "TR-1", testrun.MetricGlucose); err != nil {
		t.Errorf("surviving metric missing: %v", err)
	}
	if _, err := canonicalRuns.GetMetric(ctx, "TR-1", testrun.MetricHemoglobin); !errors.Is(err, testrun.ErrMetricNotFound) {
		t.Errorf("collapsed-band metric should be rejected, got %v", err)
	}

	// A partial sync still confirmed data movement.
	got, err := f.sources.GetByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.LastSyncTime == nil {
		t.Error("partial sync should set last_sync_time")
	}
}

func TestSyncSourceInactive(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	src := f.registerSource(t, "Factory A", false)
	ctx := context.Background()

	log, err := f.service.SyncSource(ctx, "Factory A")
	if !errors.Is(err, ErrSourceInactive) {
		t.Fatalf("expected ErrSourceInactive, got %v", err)
	}
	if log == nil || log.Status != source.StatusFailed {
		t.Fatalf("expected a failed audit row, got %+v", log)
	}

	latest, err := f.logs.Latest(ctx, src.ID)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Status != source.StatusFailed || latest.ErrorMessage == "" {
		t.Errorf("refusal not audited: %+v", latest)
	}
}

func TestSyncSourceLazyRegistration(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	ctx := context.Background()

	// A name never seen before is registered on first sync.
	log, err := f.service.SyncSource(ctx, "Factory A")
	if err != nil {
		t.Fatalf("SyncSource failed: %v", err)
	}
	if log.Status != source.StatusSuccess {
		t.Errorf("status = %s, want success", log.Status)
	}

	src, err := f.sources.GetByName(ctx, "Factory A")
	if err != nil {
		t.Fatalf("lazily registered source not found: %v", err)
	}
	if src.Kind != source.KindFactory || !src.IsActive {
		t.Errorf("registered source = kind %s active %v, want factory/active", src.Kind, src.IsActive)
	}
}

func TestSyncSourceStoreUnavailable(t *testing.T) {
	f := setupFixture(t, Options{})
	f.registerSource(t, "Factory Z", true)

	log, err := f.service.SyncSource(context.Background(), "Factory Z")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if log == nil || log.Status != source.StatusFailed {
		t.Errorf("expected a failed audit row, got %+v", log)
	}
}

func TestSyncSourceConcurrentBlocked(t *testing.T) {
	f := setupFixture(t, Options{StaleLockWindow: 5 * time.Minute}, "Factory A")
	src := f.registerSource(t, "Factory A", true)
	ctx := context.Background()

	// Another worker started two minutes ago and is still going.
	if err := f.logs.Create(ctx, &source.SyncLog{
		SourceID:  src.ID,
		Timestamp: time.Now().UTC().Add(-2 * time.Minute),
	}); err != nil {
		t.Fatalf("seed in-progress log: %v", err)
	}

	_, err := f.service.SyncSource(ctx, "Factory A")
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}

	// The blocked attempt must not leave an audit row of its own.
	logs, err := f.logs.ListBySource(ctx, src.ID, 10)
	if err != nil {
		t.Fatalf("ListBySource failed: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("expected only the pre-existing row, got %d rows", len(logs))
	}
}

func TestSyncSourceStaleLockIgnored(t *testing.T) {
	f := setupFixture(t, Options{StaleLockWindow: 5 * time.Minute}, "Factory A")
	src := f.registerSource(t, "Factory A", true)
	ctx := context.Background()

	// A crashed worker left this row six minutes ago.
	if err := f.logs.Create(ctx, &source.SyncLog{
		SourceID:  src.ID,
		Timestamp: time.Now().UTC().Add(-6 * time.Minute),
	}); err != nil {
		t.Fatalf("seed stale log: %v", err)
	}

	log, err := f.service.SyncSource(ctx, "Factory A")
	if err != nil {
		t.Fatalf("expected stale lock to be ignored, got %v", err)
	}
	if log.Status != source.StatusSuccess {
		t.Errorf("Status = %q, want %q", log.Status, source.StatusSuccess)
	}
}

func TestSyncAll(t *testing.T) {
	f := setupFixture(t, Options{Workers: 2}, "Factory A", "Factory B")
	f.registerSource(t, "Factory A", true)
	f.registerSource(t, "Factory B", true)
	f.registerSource(t, "Factory C", false) // inactive, skipped
	f.seedFactory(t, "Factory A", "FA-001", "TR-A1", []testrun.Metric{
		{Kind: testrun.MetricHemoglobin, Value: 14.0, ExpectedMin: 12.0, ExpectedMax: 17.5},
	})
	f.seedFactory(t, "Factory B", "FB-001", "TR-B1", []testrun.Metric{
		{Kind: testrun.MetricWhiteCells, Value: 7.2, ExpectedMin: 4.0, ExpectedMax: 11.0},
	})

	results, err := f.service.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected results for 2 active sources, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("source %s failed: %v", r.SourceName, r.Err)
		}
		if r.Log == nil || r.Log.Status != source.StatusSuccess || r.Log.RecordsProcessed != 1 {
			t.Errorf("source %s: unexpected log %+v", r.SourceName, r.Log)
		}
	}
}

func TestStatusAndHistory(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	f.registerSource(t, "Factory A", true)
	ctx := context.Background()

	if _, err := f.service.Status(ctx, "Factory A"); !errors.Is(err, source.ErrLogNotFound) {
		t.Errorf("expected ErrLogNotFound before first sync, got %v", err)
	}

	if _, err := f.service.SyncSource(ctx, "Factory A"); err != nil {
		t.Fatalf("SyncSource failed: %v", err)
	}
	if _, err := f.service.SyncSource(ctx, "Factory A"); err != nil {
		t.Fatalf("second SyncSource failed: %v", err)
	}

	status, err := f.service.Status(ctx, "Factory A")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != source.StatusSuccess {
		t.Errorf("Status = %q, want %q", status.Status, source.StatusSuccess)
	}

	history, err := f.service.History(ctx, "Factory A", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 history rows, got %d", len(history))
	}
}

type captureNotifier struct {
	events []Event
}

func (c *captureNotifier) SyncCompleted(e Event) { c.events = append(c.events, e) }

func TestSyncEmitsEvent(t *testing.T) {
	f := setupFixture(t, Options{}, "Factory A")
	f.registerSource(t, "Factory A", true)
	f.seedFactory(t, "Factory A", "FA-001", "TR-1", []testrun.Metric{
		{Kind: testrun.MetricHemoglobin, Value: 14.0, ExpectedMin: 12.0, ExpectedMax: 17.5},
	})

	notifier := &captureNotifier{}
	f.service.SetNotifier(notifier)

	if _, err := f.service.SyncSource(context.Background(), "Factory A"); err != nil {
		t.Fatalf("SyncSource failed: %v", err)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(notifier.events))
	}
	e := notifier.events[0]
	if e.SourceName != "Factory A" || e.StoreID != "factory_a" || e.Status != source.StatusSuccess {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.RecordsProcessed != 1 || e.NewDevices != 1 || e.NewRuns != 1 {
		t.Errorf("unexpected event counters: %+v", e)
	}
}
