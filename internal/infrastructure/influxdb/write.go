package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSyncAttempt records the outcome of one sync attempt.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sourceName: Registered source name (e.g., "Factory A")
//   - storeID: Physical store the attempt read from (e.g., "factory_a")
//   - status: Terminal sync status (success, partial, failed)
//   - records: Number of records newly merged
//   - duration: Wall-clock time of the attempt
func (c *Client) WriteSyncAttempt(sourceName, storeID, status string, records int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sync_attempts",
		map[string]string{
			"source": sourceName,
			"store":  storeID,
			"status": status,
		},
		map[string]interface{}{
			"records_processed": records,
			"duration_ms":       duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAbnormalMetric records a metric that fell outside its expected
// band, for trend dashboards over analyzer drift.
//
// Parameters:
//   - deviceID: Analyzer the measurement came from
//   - runID: Run the metric belongs to
//   - kind: Metric kind (hgb, wbc, plt, glc)
//   - value: The out-of-range value
//   - expectedMin, expectedMax: The violated band
func (c *Client) WriteAbnormalMetric(deviceID, runID, kind string, value, expectedMin, expectedMax float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"abnormal_metrics",
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
		},
		map[string]interface{}{
			"run_id":       runID,
			"value":        value,
			"expected_min": expectedMin,
			"expected_max": expectedMax,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "sync-01"},
//	    map[string]interface{}{"goroutines": 42})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., backfilled data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
