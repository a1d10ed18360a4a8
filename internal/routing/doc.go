// Package routing decides which physical store owns a record.
//
// The system keeps one SQLite database per factory site plus a canonical
// central database. Two disjoint model categories drive every decision:
//
//   - system-scoped: DataSource, SyncLog, Technician. Always canonical.
//   - source-scoped: BloodAnalyzer, TestRun, TestMetric. Follow their
//     owning data source.
//
// Store ids are derived from data source names ("Factory A" -> "factory_a").
// Resolution never fails: an unknown or missing mapping falls back to the
// canonical store by definition.
//
// The resolver is deliberately side-effect free. It takes identifiers the
// caller has already walked from the record (the owning source name) and
// performs no lookups of its own, so routing decisions are trivially
// testable and carry no hidden database state.
package routing
