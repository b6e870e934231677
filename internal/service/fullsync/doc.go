// Package fullsync walks Planning Center's cursor-paginated collections and
// populates the mirror tables.
//
// Each page's records are upserted independently; no transaction spans a
// run, so an aborted sync leaves everything already written committed and a
// rerun is cheap because the upserts are idempotent. Every cursor walk is
// bounded by a configurable page ceiling as a guard against upstream
// pagination that never terminates. The sync status row is written only
// after a run completes without aborting.
package fullsync
