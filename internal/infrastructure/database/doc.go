// Package database manages the physical SQLite stores for VitalSync.
//
// The system keeps one canonical central database plus one database per
// factory site. This package provides:
//
//   - Open: connect to a single store with WAL mode and busy-timeout pragmas
//   - Migrate: apply embedded schema migrations to a store, split into a
//     shared set (source-scoped tables, present in every store) and a
//     canonical set (system-scoped tables, canonical store only)
//   - Manager: the registry of open stores, keyed by routing store id
//
// # Migration sets
//
// Source-scoped tables (analyzers, test runs, test metrics, technicians)
// must exist in every store because source stores hold the same schema
// under local identifiers. System-scoped tables (data sources, sync logs)
// exist only in the canonical store. Manager.MigrateAll applies the sets
// accordingly.
//
// # Usage
//
//	stores, err := database.OpenAll(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer stores.Close()
//
//	if err := stores.MigrateAll(ctx); err != nil {
//	    return err
//	}
//
//	db, _ := stores.Store(routing.StoreID("factory_a"))
package database
