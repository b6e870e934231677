package domain

import "time"

// Connection holds one organization's Planning Center credential. At most one
// live connection exists per organization; a connection that fails any
// verification step is deleted, never left half-valid.
type Connection struct {
	OrganizationID  string    `json:"organization_id" db:"organization_id"`
	AccessToken     string    `json:"-" db:"access_token"`
	RefreshToken    string    `json:"-" db:"refresh_token"`
	Scope           string    `json:"scope" db:"scope"`
	PCOUserID       string    `json:"pco_user_id" db:"pco_user_id"`
	LastRefreshedAt time.Time `json:"last_refreshed_at" db:"last_refreshed_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// WebhookSecret is the shared HMAC secret for one (organization, event name)
// webhook subscription. A signature can only be verified against the secret
// matching both the organization from the URL and the event name from the
// header.
type WebhookSecret struct {
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	EventName      string    `json:"event_name" db:"event_name"`
	SubscriptionID string    `json:"subscription_id" db:"subscription_id"`
	Secret         string    `json:"-" db:"secret"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
