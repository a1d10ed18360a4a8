package sync

import "errors"

// Domain errors for the sync package, checked with errors.Is().
var (
	// ErrSourceInactive is returned when a sync is requested against a
	// source whose is_active flag is off. The refusal is recorded in the
	// audit trail.
	ErrSourceInactive = errors.New("sync: source is inactive")

	// ErrSyncInProgress is returned when a fresh in_progress sync log
	// already exists for the source. The blocked attempt leaves no audit
	// row of its own.
	ErrSyncInProgress = errors.New("sync: source sync already in progress")

	// ErrStoreUnavailable is returned when a registered source has no
	// attached physical store.
	ErrStoreUnavailable = errors.New("sync: source store unavailable")
)
