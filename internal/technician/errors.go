package technician

import "errors"

// Domain errors for the technician package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, technician.ErrTechnicianNotFound) {
//	    // handle not found case
//	}
var (
	// ErrTechnicianNotFound is returned when a technician id or username does not exist.
	ErrTechnicianNotFound = errors.New("technician: not found")

	// ErrUsernameExists is returned when creating a technician with a username
	// that already exists in the store.
	ErrUsernameExists = errors.New("technician: username already exists")
)
