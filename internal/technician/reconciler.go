package technician

import (
	"context"
	"errors"
	"fmt"
)

// Reconciler maps a technician id found in a source store onto the
// matching canonical identity, creating the canonical row on first
// sight. Matching is by username; canonical ids are never assumed to
// line up with source-local ids.
type Reconciler struct {
	canonical Repository
}

// NewReconciler creates a reconciler writing into the given canonical repository.
func NewReconciler(canonical Repository) *Reconciler {
	return &Reconciler{canonical: canonical}
}

// Resolve looks up sourceID in the source store and returns the canonical
// technician with the same username. A missing canonical row is created by
// copying the source profile under a fresh canonical id.
//
// Resolve returns (nil, nil) when sourceID is empty or does not exist in
// the source store: an unattributed run stays unattributed.
func (r *Reconciler) Resolve(ctx context.Context, source Repository, sourceID string) (*Technician, error) {
	if sourceID == "" {
		return nil, nil
	}

	src, err := source.GetByID(ctx, sourceID)
	if err != nil {
		if errors.Is(err, ErrTechnicianNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading source technician %s: %w", sourceID, err)
	}

	existing, err := r.canonical.GetByUsername(ctx, src.Username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrTechnicianNotFound) {
		return nil, fmt.Errorf("looking up canonical technician %s: %w", src.Username, err)
	}

	canonical := &Technician{
		Username:  src.Username,
		Email:     src.Email,
		FirstName: src.FirstName,
		LastName:  src.LastName,
		IsStaff:   src.IsStaff,
		IsActive:  src.IsActive,
	}
	if err := r.canonical.Create(ctx, canonical); err != nil {
		// A concurrent sync may have created the same username between
		// the lookup and the insert. Re-fetch and use that row.
		if errors.Is(err, ErrUsernameExists) {
			return r.canonical.GetByUsername(ctx, src.Username)
		}
		return nil, fmt.Errorf("creating canonical technician %s: %w", src.Username, err)
	}

	return canonical, nil
}
