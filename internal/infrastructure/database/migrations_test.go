package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vitalone/vitalsync/internal/infrastructure/database"

	_ "github.com/vitalone/vitalsync/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *database.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("checking table %s: %v", name, err)
	}
	return count > 0
}

func TestMigrateSharedSet(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background(), database.SetShared); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	for _, table := range []string{"technicians", "analyzers", "test_runs", "test_metrics"} {
		if !tableExists(t, db, table) {
			t.Errorf("expected table %s after shared set", table)
		}
	}
	if tableExists(t, db, "data_sources") {
		t.Error("shared set must not create system-scoped tables")
	}
}

func TestMigrateCanonicalSet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, database.SetCanonical); err != nil {
		t.Fatalf("Migrate canonical failed: %v", err)
	}
	if err := db.Migrate(ctx, database.SetShared); err != nil {
		t.Fatalf("Migrate shared failed: %v", err)
	}

	for _, table := range []string{"data_sources", "sync_logs", "analyzers"} {
		if !tableExists(t, db, table) {
			t.Errorf("expected table %s", table)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, database.SetShared); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if err := db.Migrate(ctx, database.SetShared); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var applied int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if applied == 0 {
		t.Error("expected recorded migrations")
	}
}
