package sync

import (
	"github.com/vitalone/vitalsync/internal/infrastructure/influxdb"
)

// InfluxRecorder writes one time-series point per finished sync attempt.
type InfluxRecorder struct {
	client *influxdb.Client
}

// NewInfluxRecorder creates a recorder writing through the given client.
func NewInfluxRecorder(client *influxdb.Client) *InfluxRecorder {
	return &InfluxRecorder{client: client}
}

// RecordSyncAttempt implements Recorder. The underlying write is
// batched and non-blocking.
func (r *InfluxRecorder) RecordSyncAttempt(e Event) {
	r.client.WriteSyncAttempt(e.SourceName, e.StoreID, e.Status, e.RecordsProcessed, e.Duration)
}

// RecordAbnormalMetric implements Recorder. One point is written per
// out-of-range measurement newly merged into the canonical store.
func (r *InfluxRecorder) RecordAbnormalMetric(m AbnormalMetric) {
	r.client.WriteAbnormalMetric(m.DeviceID, m.RunID, m.Kind, m.Value, m.ExpectedMin, m.ExpectedMax)
}
