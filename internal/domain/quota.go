package domain

import "time"

// SendQuota is the organization's remaining allowance of billable sends.
// The eligibility pipeline only reads it; decrementing belongs to the
// dispatcher after a successful send.
type SendQuota struct {
	OrganizationID string `json:"organization_id" db:"organization_id"`
	SendsRemaining int    `json:"sends_remaining" db:"sends_remaining"`
	SendsUsed      int    `json:"sends_used" db:"sends_used"`
}

// EmailStatus values for the global per-address subscription state.
const (
	EmailStatusSubscribed   = "subscribed"
	EmailStatusUnsubscribed = "unsubscribed"
	EmailStatusCleaned      = "cleaned"
)

// GlobalEmailStatus is the organization-wide opt-in state of one address.
type GlobalEmailStatus struct {
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Address        string    `json:"address" db:"address"`
	Status         string    `json:"status" db:"status"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// CategoryUnsubscribe records one address opting out of one email category.
type CategoryUnsubscribe struct {
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	CategoryID     string    `json:"category_id" db:"category_id"`
	Address        string    `json:"address" db:"address"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
