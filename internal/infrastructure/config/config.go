package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for VitalSync.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig identifies the deployment running this instance.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains the canonical store settings plus the set of
// source stores this instance reconciles from.
type DatabaseConfig struct {
	// Path is the filesystem path to the canonical SQLite database file.
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging for better concurrent access.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`

	// Sources lists the per-factory source stores.
	Sources []SourceStoreConfig `yaml:"sources"`
}

// SourceStoreConfig describes one per-factory source database.
type SourceStoreConfig struct {
	// Name is the data source name as registered in the canonical store
	// (e.g., "Factory A"). The physical store id is derived from it.
	Name string `yaml:"name"`

	// Path is the filesystem path to the source SQLite database file.
	Path string `yaml:"path"`

	// FetchDelayMs simulates network latency when reading records from
	// this source, standing in for the remote factory link.
	FetchDelayMs int `yaml:"fetch_delay_ms"`
}

// SyncConfig contains reconciliation engine settings.
type SyncConfig struct {
	// Interval is how often the scheduler runs a full sync pass (seconds).
	Interval int `yaml:"interval"`

	// IdleInterval is the longer pause used when a full pass produced no
	// new records (seconds).
	IdleInterval int `yaml:"idle_interval"`

	// Workers bounds how many sources are synced concurrently.
	// 1 means sequential processing.
	Workers int `yaml:"workers"`

	// StaleLockMinutes is the age after which an in_progress sync log no
	// longer blocks a new attempt.
	StaleLockMinutes int `yaml:"stale_lock_minutes"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker carries sync events and remote sync-trigger requests.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains sync telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VITALSYNC_SECTION_KEY
// For example: VITALSYNC_DATABASE_PATH, VITALSYNC_API_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "VitalSync",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/vitalsync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Sync: SyncConfig{
			Interval:         90,
			IdleInterval:     600,
			Workers:          1,
			StaleLockMinutes: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "vitalsync-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VITALSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("VITALSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("VITALSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// MQTT
	if v := os.Getenv("VITALSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VITALSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VITALSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("VITALSYNC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	seen := make(map[string]bool)
	for i, src := range c.Database.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Sprintf("database.sources[%d].name is required", i))
		}
		if src.Path == "" {
			errs = append(errs, fmt.Sprintf("database.sources[%d].path is required", i))
		}
		if seen[src.Name] {
			errs = append(errs, fmt.Sprintf("database.sources[%d].name %q is duplicated", i, src.Name))
		}
		seen[src.Name] = true
	}

	// Sync validation
	if c.Sync.Interval < 1 {
		errs = append(errs, "sync.interval must be at least 1 second")
	}
	if c.Sync.IdleInterval < c.Sync.Interval {
		errs = append(errs, "sync.idle_interval must not be shorter than sync.interval")
	}
	if c.Sync.Workers < 1 {
		errs = append(errs, "sync.workers must be at least 1")
	}
	if c.Sync.StaleLockMinutes < 1 {
		errs = append(errs, "sync.stale_lock_minutes must be at least 1")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetSyncInterval returns the sync pass interval as a Duration.
func (c *Config) GetSyncInterval() time.Duration {
	return time.Duration(c.Sync.Interval) * time.Second
}

// GetSyncIdleInterval returns the idle backoff interval as a Duration.
func (c *Config) GetSyncIdleInterval() time.Duration {
	return time.Duration(c.Sync.IdleInterval) * time.Second
}

// GetStaleLockWindow returns the in-progress lock staleness window as a Duration.
func (c *Config) GetStaleLockWindow() time.Duration {
	return time.Duration(c.Sync.StaleLockMinutes) * time.Minute
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
