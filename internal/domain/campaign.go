package domain

import "time"

// EmailCampaign is a bulk send authored against a mirrored list. Dispatching
// it is out of scope here; this service only computes who is eligible to
// receive it.
type EmailCampaign struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	ListID         string     `json:"list_id" db:"list_id"`
	CategoryID     string     `json:"category_id" db:"category_id"`
	Subject        string     `json:"subject" db:"subject"`
	FromEmail      string     `json:"from_email" db:"from_email"`
	FromName       string     `json:"from_name" db:"from_name"`
	ReplyTo        string     `json:"reply_to" db:"reply_to"`
	ScheduledFor   *time.Time `json:"scheduled_for" db:"scheduled_for"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// EmailCategory groups campaigns for per-category unsubscribe purposes.
type EmailCategory struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
}

// Recipient is one deliverable address with its name metadata, keyed by the
// internal id of the mirrored email row it came from.
type Recipient struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}
