package testrun

import "errors"

// Domain errors for the testrun package, checked with errors.Is().
var (
	// ErrRunNotFound is returned when a run id does not exist in the store.
	ErrRunNotFound = errors.New("testrun: run not found")

	// ErrRunExists is returned when creating a run whose id is already present.
	ErrRunExists = errors.New("testrun: run already exists")

	// ErrMetricNotFound is returned when a run has no metric of the requested kind.
	ErrMetricNotFound = errors.New("testrun: metric not found")

	// ErrMetricExists is returned when a run already carries a metric of the same kind.
	ErrMetricExists = errors.New("testrun: metric already exists")

	// ErrInvalidRange is returned when a metric's expected band is empty or inverted.
	ErrInvalidRange = errors.New("testrun: expected_max must be greater than expected_min")
)
