// VitalSync - Laboratory Data Reconciliation Service
//
// This is the main entry point for the VitalSync service. VitalSync
// merges blood-analyzer records from per-factory SQLite stores into a
// single canonical store:
//   - Routed multi-store persistence (one store per factory, one canonical)
//   - Idempotent sync with audit logging and advisory locking
//   - Technician identity reconciliation across sources
//   - HTTP API, MQTT event surface and InfluxDB telemetry
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/vitalone/vitalsync/migrations"

	"github.com/vitalone/vitalsync/internal/analyzer"
	"github.com/vitalone/vitalsync/internal/api"
	"github.com/vitalone/vitalsync/internal/infrastructure/config"
	"github.com/vitalone/vitalsync/internal/infrastructure/database"
	"github.com/vitalone/vitalsync/internal/infrastructure/influxdb"
	"github.com/vitalone/vitalsync/internal/infrastructure/logging"
	"github.com/vitalone/vitalsync/internal/infrastructure/mqtt"
	"github.com/vitalone/vitalsync/internal/source"
	"github.com/vitalone/vitalsync/internal/sync"
	"github.com/vitalone/vitalsync/internal/technician"
	"github.com/vitalone/vitalsync/internal/testrun"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting VitalSync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the canonical store and every configured source store
	stores, err := database.OpenAll(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	defer func() {
		log.Info("closing stores")
		if closeErr := stores.Close(); closeErr != nil {
			log.Error("error closing stores", "error", closeErr)
		}
	}()
	log.Info("stores connected",
		"canonical", cfg.Database.Path,
		"sources", len(cfg.Database.Sources),
	)

	// Run migrations on every store
	if migrateErr := stores.MigrateAll(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("store migrations complete")

	// Repositories over the canonical store
	canonical := stores.Canonical()
	analyzerRepo := analyzer.NewSQLiteRepository(canonical.DB)
	runRepo := testrun.NewSQLiteRepository(canonical.DB)
	technicianRepo := technician.NewSQLiteRepository(canonical.DB)
	sourceRepo := source.NewSQLiteRepository(canonical.DB)
	syncLogRepo := source.NewSQLiteSyncLogRepository(canonical.DB)

	// Register configured source stores that are not yet known
	if regErr := registerConfiguredSources(ctx, cfg.Database, sourceRepo, log); regErr != nil {
		return fmt.Errorf("registering sources: %w", regErr)
	}

	// Sync engine
	reconciler := technician.NewReconciler(technicianRepo)
	merger := sync.NewMerger(analyzerRepo, runRepo, reconciler)
	syncService := sync.NewService(stores, sourceRepo, syncLogRepo, merger, log, sync.Options{
		StaleLockWindow: time.Duration(cfg.Sync.StaleLockMinutes) * time.Minute,
		Workers:         cfg.Sync.Workers,
	})

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// Publish sync outcomes and accept external sync requests
		syncService.SetNotifier(sync.NewMQTTNotifier(mqttClient, log))
		listener := sync.NewListener(mqttClient, syncService, stores, log, byte(cfg.MQTT.QoS))
		if listenErr := listener.Start(ctx); listenErr != nil {
			return fmt.Errorf("starting sync request listener: %w", listenErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		syncService.SetRecorder(sync.NewInfluxRecorder(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// Periodic sync scheduler
	scheduler := sync.NewScheduler(syncService,
		time.Duration(cfg.Sync.Interval)*time.Second,
		time.Duration(cfg.Sync.IdleInterval)*time.Second,
		log,
	)
	scheduler.Start(ctx)
	defer func() {
		log.Info("stopping scheduler")
		scheduler.Stop()
	}()
	log.Info("scheduler started",
		"interval", cfg.Sync.Interval,
		"idle_interval", cfg.Sync.IdleInterval,
	)

	// HTTP API
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Sync:      syncService,
		Stores:    stores,
		Analyzers: analyzerRepo,
		Runs:      runRepo,
		Sources:   sourceRepo,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, stores, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Scheduler
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Stores

	log.Info("VitalSync stopped")
	return nil
}

// registerConfiguredSources ensures every source store named in the
// configuration has a matching data source record in the canonical store.
// Existing records are left untouched so operators can deactivate a source
// without removing its store from the configuration.
func registerConfiguredSources(ctx context.Context, cfg config.DatabaseConfig, sources source.Repository, log *logging.Logger) error {
	for _, sc := range cfg.Sources {
		_, err := sources.GetByName(ctx, sc.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, source.ErrSourceNotFound) {
			return fmt.Errorf("looking up source %q: %w", sc.Name, err)
		}

		src := &source.Source{
			Name:     sc.Name,
			Kind:     source.KindFactory,
			IsActive: true,
		}
		if createErr := sources.Create(ctx, src); createErr != nil {
			return fmt.Errorf("registering source %q: %w", sc.Name, createErr)
		}
		log.Info("registered data source", "name", sc.Name, "id", src.ID)
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VITALSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VITALSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB are skipped when not configured.
func healthCheck(ctx context.Context, stores *database.Manager, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := stores.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("MQTT health check: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("InfluxDB health check: %w", err)
		}
	}
	return nil
}
