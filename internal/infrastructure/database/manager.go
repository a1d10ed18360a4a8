package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitalone/vitalsync/internal/infrastructure/config"
	"github.com/vitalone/vitalsync/internal/routing"
)

// ErrUnknownStore is returned when a store id does not map to a configured store.
var ErrUnknownStore = errors.New("database: unknown store")

// sourceStore holds one per-factory store and its connection metadata.
type sourceStore struct {
	db *DB

	// name is the data source name the store was configured under.
	name string

	// fetchDelay simulates network latency on reads from this store,
	// standing in for the remote factory link.
	fetchDelay time.Duration
}

// Manager owns the canonical store plus every configured source store,
// keyed by routing store id.
//
// Repositories are handed a *sql.DB for the store a record routes to, the
// same way the original system selected a database alias per operation.
// Source stores are read-only from the reconciler's perspective; the
// Manager does not enforce that, the sync engine simply never writes to them.
//
// Thread Safety: the store map is built once in OpenAll and never mutated,
// so all methods are safe for concurrent use.
type Manager struct {
	canonical *DB
	sources   map[routing.StoreID]*sourceStore
	resolver  *routing.Resolver
}

// OpenAll opens the canonical store and every configured source store.
//
// On any failure the stores opened so far are closed before returning.
//
// Parameters:
//   - cfg: Database configuration (canonical path plus source list)
//
// Returns:
//   - *Manager: Manager with all stores open
//   - error: If any store fails to open
func OpenAll(cfg config.DatabaseConfig) (*Manager, error) {
	canonical, err := Open(Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening canonical store: %w", err)
	}

	m := &Manager{
		canonical: canonical,
		sources:   make(map[routing.StoreID]*sourceStore, len(cfg.Sources)),
	}

	for _, src := range cfg.Sources {
		db, err := Open(Config{
			Path:        src.Path,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		})
		if err != nil {
			m.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("opening source store %q: %w", src.Name, err)
		}

		id := routing.StoreIDForSource(src.Name)
		m.sources[id] = &sourceStore{
			db:         db,
			name:       src.Name,
			fetchDelay: time.Duration(src.FetchDelayMs) * time.Millisecond,
		}
	}

	ids := make([]routing.StoreID, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	m.resolver = routing.NewResolver(ids)

	return m, nil
}

// MigrateAll applies the schema sets to the stores the resolver's
// migration policy names: the canonical (system-scoped) set lands only
// where system-scoped models live, the shared (source-scoped) set lands
// in every known store.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: First migration failure, or nil
func (m *Manager) MigrateAll(ctx context.Context) error {
	sets := []struct {
		name    string
		targets []routing.StoreID
	}{
		{SetCanonical, m.resolver.MigrationTargets(routing.ModelSyncLog)},
		{SetShared, m.resolver.MigrationTargets(routing.ModelAnalyzer)},
	}

	for _, set := range sets {
		for _, id := range set.targets {
			db, err := m.Store(id)
			if err != nil {
				return fmt.Errorf("resolving migration target %q: %w", id, err)
			}
			if err := db.Migrate(ctx, set.name); err != nil {
				return fmt.Errorf("migrating store %q (%s set): %w", id, set.name, err)
			}
		}
	}

	return nil
}

// Canonical returns the canonical store.
func (m *Manager) Canonical() *DB {
	return m.canonical
}

// Store returns the store for the given id.
// The canonical id always resolves; source ids must have been configured.
func (m *Manager) Store(id routing.StoreID) (*DB, error) {
	if !m.resolver.Knows(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, id)
	}
	if id == routing.Canonical {
		return m.canonical, nil
	}
	return m.sources[id].db, nil
}

// Resolver returns the routing resolver built from the configured stores.
func (m *Manager) Resolver() *routing.Resolver {
	return m.resolver
}

// SourceStores returns the ids of all configured source stores.
func (m *Manager) SourceStores() []routing.StoreID {
	ids := make([]routing.StoreID, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	return ids
}

// SourceName returns the configured data source name for a store id.
func (m *Manager) SourceName(id routing.StoreID) (string, bool) {
	src, ok := m.sources[id]
	if !ok {
		return "", false
	}
	return src.name, true
}

// FetchDelay returns the simulated network latency for reads from a store.
// The canonical store and unknown stores have no delay.
func (m *Manager) FetchDelay(id routing.StoreID) time.Duration {
	if src, ok := m.sources[id]; ok {
		return src.fetchDelay
	}
	return 0
}

// HealthCheck verifies every store is accessible.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: First failing store, or nil if all healthy
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.canonical.HealthCheck(ctx); err != nil {
		return fmt.Errorf("canonical store: %w", err)
	}
	for id, src := range m.sources {
		if err := src.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("source store %s: %w", id, err)
		}
	}
	return nil
}

// Close closes all stores. The first error is returned but every store
// is attempted.
func (m *Manager) Close() error {
	var firstErr error
	if m.canonical != nil {
		if err := m.canonical.Close(); err != nil {
			firstErr = err
		}
	}
	for _, src := range m.sources {
		if err := src.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
