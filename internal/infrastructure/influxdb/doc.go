// Package influxdb records sync telemetry as time-series points.
//
// Two measurements are written: sync_attempts, one point per finished
// sync with its status and counters, and abnormal_metrics, one point
// per out-of-range analyzer measurement. Writes are batched and
// non-blocking; when the telemetry server is down points are dropped,
// never blocking the reconciler.
package influxdb
