// Package token owns the Planning Center credential lifecycle for each
// organization: creation after the OAuth code exchange, the guarded refresh
// of single-use refresh tokens, the identity/permission probe, and deletion
// when a credential becomes unrecoverable.
//
// Upstream refresh tokens rotate on every exchange. Two concurrent refreshes
// for the same organization would invalidate each other's new tokens, so the
// service refreshes at most once per guard window and serializes the refresh
// critical section with a per-organization distributed lock plus a
// conditional database update.
package token
