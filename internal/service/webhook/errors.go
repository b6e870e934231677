package webhook

import "errors"

// Sentinel errors for the webhook service layer. The HTTP handler maps these
// onto status codes (400/404/401); anything else is a mutation failure and
// becomes a 500 so upstream redelivers.
var (
	ErrMissingHeader     = errors.New("webhook delivery is missing a required header")
	ErrUnknownSecret     = errors.New("no webhook secret stored for this organization and event")
	ErrSignatureMismatch = errors.New("webhook signature verification failed")
	ErrMalformedBody     = errors.New("webhook body is not a valid event envelope")
)
