package eligibility

import "errors"

// Sentinel errors for the eligibility service layer.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
)
