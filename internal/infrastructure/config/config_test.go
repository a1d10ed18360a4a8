package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/canonical.db"
  wal_mode: true
  busy_timeout: 5
  sources:
    - name: "Factory A"
      path: "/tmp/factory_a.db"
      fetch_delay_ms: 50
    - name: "Factory C"
      path: "/tmp/factory_c.db"
sync:
  interval: 120
  idle_interval: 600
  workers: 2
api:
  host: "0.0.0.0"
  port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/canonical.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/canonical.db")
	}
	if len(cfg.Database.Sources) != 2 {
		t.Fatalf("len(Database.Sources) = %d, want 2", len(cfg.Database.Sources))
	}
	if cfg.Database.Sources[0].Name != "Factory A" {
		t.Errorf("Sources[0].Name = %q, want %q", cfg.Database.Sources[0].Name, "Factory A")
	}
	if cfg.Database.Sources[0].FetchDelayMs != 50 {
		t.Errorf("Sources[0].FetchDelayMs = %d, want 50", cfg.Database.Sources[0].FetchDelayMs)
	}
	if cfg.Sync.Workers != 2 {
		t.Errorf("Sync.Workers = %d, want 2", cfg.Sync.Workers)
	}
	if cfg.GetSyncInterval() != 120*time.Second {
		t.Errorf("GetSyncInterval() = %v, want 120s", cfg.GetSyncInterval())
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
site:
  id: "test-site"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sync.Interval != 90 {
		t.Errorf("Sync.Interval = %d, want default 90", cfg.Sync.Interval)
	}
	if cfg.Sync.IdleInterval != 600 {
		t.Errorf("Sync.IdleInterval = %d, want default 600", cfg.Sync.IdleInterval)
	}
	if cfg.Sync.StaleLockMinutes != 5 {
		t.Errorf("Sync.StaleLockMinutes = %d, want default 5", cfg.Sync.StaleLockMinutes)
	}
	if cfg.GetStaleLockWindow() != 5*time.Minute {
		t.Errorf("GetStaleLockWindow() = %v, want 5m", cfg.GetStaleLockWindow())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing site id",
			content: `
site:
  id: ""
database:
  path: "/tmp/test.db"
`,
		},
		{
			name: "source without path",
			content: `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  sources:
    - name: "Factory A"
`,
		},
		{
			name: "duplicate source names",
			content: `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  sources:
    - name: "Factory A"
      path: "/tmp/a.db"
    - name: "Factory A"
      path: "/tmp/a2.db"
`,
		},
		{
			name: "zero workers",
			content: `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
sync:
  workers: 0
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Error("Load() expected validation error, got nil")
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/file.db"
`
	t.Setenv("VITALSYNC_DATABASE_PATH", "/tmp/env.db")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want env override %q", cfg.Database.Path, "/tmp/env.db")
	}
}
