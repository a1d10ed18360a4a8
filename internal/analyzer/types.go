package analyzer

import "time"

// Analyzer status values. Status is an open field; these are the values
// the fleet uses today.
const (
	StatusActive      = "active"
	StatusMaintenance = "maintenance"
	StatusRetired     = "retired"
)

// calibrationInterval is the default gap between calibrations used to
// derive a due date when a device record arrives without one.
const calibrationInterval = 30 * 24 * time.Hour

// Analyzer is a blood-analyzer device. Devices exist both in source
// stores (where the factory software created them) and in the canonical
// store (where sync places a copy). DeviceID is the cross-store identity.
type Analyzer struct {
	DeviceID           string     `json:"device_id"`
	DeviceType         string     `json:"device_type"`
	Status             string     `json:"status"`
	LastCalibration    *time.Time `json:"last_calibration,omitempty"`
	NextCalibrationDue *time.Time `json:"next_calibration_due,omitempty"`
	Location           string     `json:"location"`
	ManufacturingDate  time.Time  `json:"manufacturing_date"`
	TechnicianID       string     `json:"technician_id,omitempty"`
	OwningSource       string     `json:"owning_source,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// deriveCalibration fills NextCalibrationDue from LastCalibration when it
// is absent or earlier than the calibration itself. A device that has
// never been calibrated keeps both fields empty.
func (a *Analyzer) deriveCalibration() {
	if a.LastCalibration == nil {
		return
	}
	if a.NextCalibrationDue == nil || a.NextCalibrationDue.Before(*a.LastCalibration) {
		due := a.LastCalibration.Add(calibrationInterval)
		a.NextCalibrationDue = &due
	}
}
