package analyzer

import "errors"

// Domain errors for the analyzer package, checked with errors.Is().
var (
	// ErrAnalyzerNotFound is returned when a device id does not exist in the store.
	ErrAnalyzerNotFound = errors.New("analyzer: not found")

	// ErrAnalyzerExists is returned when creating a device whose id is already present.
	ErrAnalyzerExists = errors.New("analyzer: already exists")

	// ErrMissingDeviceID is returned when a device is written without an id.
	ErrMissingDeviceID = errors.New("analyzer: device id is required")
)
