// Package testrun manages analyzer runs and their metrics.
//
// A run's abnormal flag is derived: inserting a metric whose value falls
// outside its expected band marks the parent run abnormal in the same
// transaction, so the flag can never lag behind the metrics.
package testrun
