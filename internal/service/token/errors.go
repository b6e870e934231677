package token

import "errors"

// Sentinel errors for the token service layer.
var (
	// ErrNotConnected means no credential is on file; the user must connect.
	ErrNotConnected = errors.New("organization is not connected to planning center")

	// ErrReconnectRequired means a credential existed but became invalid and
	// has been deleted. Callers must prompt for re-authentication, not retry.
	ErrReconnectRequired = errors.New("planning center connection is no longer valid, reconnect required")
)
