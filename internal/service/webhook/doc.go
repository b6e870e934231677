// Package webhook verifies and applies Planning Center push events.
//
// Every delivery is authenticated with an HMAC-SHA256 signature over the raw
// request body, checked in constant time against the secret stored for the
// (organization, event name) subscription. Verified events apply idempotent
// mutations to the mirror tables, so redelivery and concurrent delivery are
// always safe. Unknown event names are acknowledged and ignored; upstream
// adds event types without notice.
package webhook
