// Package analyzer manages blood-analyzer device records.
//
// Devices are identified by their factory-assigned device id, which is
// stable across stores. The repository tolerates source stores whose
// schema predates the owning_source column; calibration due dates are
// derived on write when the factory software omitted them.
package analyzer
