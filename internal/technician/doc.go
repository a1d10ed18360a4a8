// Package technician manages laboratory user identities across stores.
//
// Every physical store carries its own technicians table with locally
// assigned ids. The Reconciler bridges them: given a technician id from
// a source store it returns the canonical identity with the matching
// username, creating it on first sight. Resolution is idempotent, so
// repeated syncs of the same source never duplicate identities.
package technician
