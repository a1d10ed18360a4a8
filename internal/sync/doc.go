// Package sync pulls device, run and metric records out of source
// stores and merges them into the canonical store.
//
// Every attempt is audited: a sync_logs row opens in in_progress,
// doubles as an advisory lock against concurrent attempts, and closes
// in success, partial or failed. Merging is idempotent, so an attempt
// that dies mid-way leaves nothing to undo; the next attempt simply
// fills in what is missing.
package sync
