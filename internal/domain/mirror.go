package domain

import "time"

// ResourceType enumerates the upstream collections mirrored locally.
type ResourceType string

const (
	ResourcePeople      ResourceType = "people"
	ResourceEmails      ResourceType = "emails"
	ResourceLists       ResourceType = "lists"
	ResourceListMembers ResourceType = "list_members"
)

// SyncOrder is the dependency order for a full sync: emails reference people,
// list members reference lists and people.
var SyncOrder = []ResourceType{ResourcePeople, ResourceEmails, ResourceLists, ResourceListMembers}

// Valid reports whether rt names a known mirrored collection.
func (rt ResourceType) Valid() bool {
	switch rt {
	case ResourcePeople, ResourceEmails, ResourceLists, ResourceListMembers:
		return true
	}
	return false
}

// Person is a mirrored Planning Center person. Unique on
// (organization_id, pco_id).
type Person struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	PCOID          string    `json:"pco_id" db:"pco_id"`
	FirstName      string    `json:"first_name" db:"first_name"`
	LastName       string    `json:"last_name" db:"last_name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// PersonEmail is a mirrored email address belonging to a person.
type PersonEmail struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	PCOID          string    `json:"pco_id" db:"pco_id"`
	PCOPersonID    string    `json:"pco_person_id" db:"pco_person_id"`
	Address        string    `json:"address" db:"address"`
	Location       string    `json:"location" db:"location"`
	Primary        bool      `json:"primary" db:"is_primary"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// PCOList is a mirrored Planning Center list.
type PCOList struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	PCOID          string    `json:"pco_id" db:"pco_id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description" db:"description"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// ListMember links a mirrored person to a mirrored list. PCOID is the
// upstream id of the membership itself (the "list result").
type ListMember struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	PCOID          string    `json:"pco_id" db:"pco_id"`
	PCOListID      string    `json:"pco_list_id" db:"pco_list_id"`
	PCOPersonID    string    `json:"pco_person_id" db:"pco_person_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// SyncStatus records the last clean full-sync completion for one
// (organization, resource type) pair. Written only after a sync finishes
// without aborting.
type SyncStatus struct {
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	ResourceType   ResourceType `json:"resource_type" db:"resource_type"`
	SyncedAt       time.Time    `json:"synced_at" db:"synced_at"`
}
