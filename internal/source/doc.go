// Package source manages registered data origins and their sync audit
// trail. Both live exclusively in the canonical store.
//
// A sync_logs row in status in_progress acts as an advisory lock: a
// second attempt against the same source refuses to start while a fresh
// one exists. Rows older than the staleness window no longer block, so
// a crashed attempt cannot wedge a source forever.
package source
