package sync

import "time"

// Event describes the outcome of one finished sync attempt.
type Event struct {
	SourceName       string
	StoreID          string
	Status           string
	RecordsProcessed int
	NewDevices       int
	NewRuns          int
	Error            string
	Duration         time.Duration
	Timestamp        time.Time
}

// Notifier publishes sync lifecycle events to interested parties, such
// as an MQTT broker. Implementations must not block.
type Notifier interface {
	SyncCompleted(event Event)
}

// AbnormalMetric describes one out-of-range measurement newly merged
// into the canonical store.
type AbnormalMetric struct {
	DeviceID    string
	RunID       string
	Kind        string
	Value       float64
	ExpectedMin float64
	ExpectedMax float64
}

// Recorder persists sync telemetry, such as time-series points.
// Implementations must not block.
type Recorder interface {
	RecordSyncAttempt(event Event)
	RecordAbnormalMetric(m AbnormalMetric)
}

type noopNotifier struct{}

func (noopNotifier) SyncCompleted(Event) {}

type noopRecorder struct{}

func (noopRecorder) RecordSyncAttempt(Event) {}

func (noopRecorder) RecordAbnormalMetric(AbnormalMetric) {}
