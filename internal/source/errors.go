package source

import "errors"

// Domain errors for the source package, checked with errors.Is().
var (
	// ErrSourceNotFound is returned when a source id or name does not exist.
	ErrSourceNotFound = errors.New("source: not found")

	// ErrSourceExists is returned when registering a source whose name is taken.
	ErrSourceExists = errors.New("source: name already exists")

	// ErrLogNotFound is returned when a source has no sync log rows.
	ErrLogNotFound = errors.New("source: sync log not found")
)
