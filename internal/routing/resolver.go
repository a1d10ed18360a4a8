package routing

import "strings"

// StoreID identifies a physical database store.
type StoreID string

// Canonical is the store id of the central database holding merged records,
// technician identities, and sync audit logs.
const Canonical StoreID = "canonical"

// Model identifies a record category for routing decisions.
type Model string

// Models known to the resolver.
const (
	ModelAnalyzer   Model = "analyzer"
	ModelTestRun    Model = "test_run"
	ModelTestMetric Model = "test_metric"
	ModelDataSource Model = "data_source"
	ModelSyncLog    Model = "sync_log"
	ModelTechnician Model = "technician"
)

// systemScoped lists the models that always live in the canonical store.
// Everything else is source-scoped and follows its owning data source.
var systemScoped = map[Model]bool{
	ModelDataSource: true,
	ModelSyncLog:    true,
	ModelTechnician: true,
}

// SystemScoped reports whether a model always resolves to the canonical store.
func SystemScoped(m Model) bool {
	return systemScoped[m]
}

// StoreIDForSource derives the physical store id for a data source name.
// Names are normalised to lowercase with spaces replaced by underscores,
// so "Factory A" maps to store id "factory_a".
func StoreIDForSource(name string) StoreID {
	return StoreID(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_"))
}

// Resolver maps records to physical stores.
//
// It is a pure decision component: it holds only the set of store ids known
// at startup and never touches a database. Callers pass already-resolved
// identifiers (the owning source name walked from the record), never live
// ORM-style references.
type Resolver struct {
	known map[StoreID]bool
}

// NewResolver creates a resolver aware of the given source store ids.
// The canonical store is always known.
func NewResolver(sourceStores []StoreID) *Resolver {
	known := make(map[StoreID]bool, len(sourceStores)+1)
	known[Canonical] = true
	for _, id := range sourceStores {
		known[id] = true
	}
	return &Resolver{known: known}
}

// Knows reports whether a store id maps to a configured physical store.
func (r *Resolver) Knows(id StoreID) bool {
	return r.known[id]
}

// Resolve returns the physical store for a record.
//
// System-scoped models always resolve to the canonical store. Source-scoped
// models resolve to the store derived from their owning source name; if the
// name is empty or the derived store is not configured, the canonical store
// is returned. Resolution never fails: absence of a mapping is a defined
// fallback, not an error.
//
// A TestMetric never resolves independently; callers must pass the owning
// source of its parent TestRun (see ResolveMetric).
func (r *Resolver) Resolve(m Model, sourceName string) StoreID {
	if SystemScoped(m) {
		return Canonical
	}
	if sourceName == "" {
		return Canonical
	}
	id := StoreIDForSource(sourceName)
	if !r.known[id] {
		return Canonical
	}
	return id
}

// ResolveMetric resolves a metric through its parent run's owning source.
// Provided as a named operation to make the delegation explicit at call sites.
func (r *Resolver) ResolveMetric(runSourceName string) StoreID {
	return r.Resolve(ModelTestRun, runSourceName)
}

// MigrationTargets returns the stores whose schema must include the model.
// System-scoped models exist only in the canonical store; source-scoped
// models exist in every known store.
func (r *Resolver) MigrationTargets(m Model) []StoreID {
	if SystemScoped(m) {
		return []StoreID{Canonical}
	}
	targets := make([]StoreID, 0, len(r.known))
	targets = append(targets, Canonical)
	for id := range r.known {
		if id != Canonical {
			targets = append(targets, id)
		}
	}
	return targets
}
