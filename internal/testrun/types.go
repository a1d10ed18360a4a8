package testrun

import "time"

// Run kinds.
const (
	KindQC          = "qc"
	KindProduction  = "production"
	KindMaintenance = "maintenance"
)

// Metric kinds measured by the analyzers.
const (
	MetricHemoglobin = "hgb"
	MetricWhiteCells = "wbc"
	MetricPlatelets  = "plt"
	MetricGlucose    = "glc"
)

// Run is a single execution of a blood analyzer. RunID is assigned by
// the factory software and is the cross-store identity of the run.
type Run struct {
	RunID         string    `json:"run_id"`
	DeviceID      string    `json:"device_id"`
	RunKind       string    `json:"run_kind"`
	Timestamp     time.Time `json:"timestamp"`
	IsAbnormal    bool      `json:"is_abnormal"`
	IsFactoryData bool      `json:"is_factory_data"`
	OwningSource  string    `json:"owning_source,omitempty"`
	ExecutedBy    string    `json:"executed_by,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// Metric is one measurement taken during a run. A run carries at most
// one metric per kind.
type Metric struct {
	ID          int64   `json:"id"`
	RunID       string  `json:"run_id"`
	Kind        string  `json:"kind"`
	Value       float64 `json:"value"`
	ExpectedMin float64 `json:"expected_min"`
	ExpectedMax float64 `json:"expected_max"`
}

// OutOfRange reports whether the measured value falls outside the
// inclusive [ExpectedMin, ExpectedMax] band.
func (m *Metric) OutOfRange() bool {
	return m.Value < m.ExpectedMin || m.Value > m.ExpectedMax
}
