package pco

import (
	"encoding/json"
	"fmt"
)

// TokenResponse is the upstream token endpoint's reply. Refresh tokens are
// single-use: every exchange rotates the pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

// Resource is one record in a JSON:API collection response. Attributes are
// left raw for the caller to decode into the matching shape.
type Resource struct {
	Type          string                     `json:"type"`
	ID            string                     `json:"id"`
	Attributes    json.RawMessage            `json:"attributes"`
	Relationships map[string]json.RawMessage `json:"relationships"`
}

// RelationshipID extracts the related resource id from a relationship entry,
// e.g. the person a list result points at. Returns "" when absent.
func (r Resource) RelationshipID(name string) string {
	raw, ok := r.Relationships[name]
	if !ok {
		return ""
	}
	var rel struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &rel); err != nil {
		return ""
	}
	return rel.Data.ID
}

// Page is one page of a cursor-paginated collection. Links.Next is nil on the
// final page.
type Page struct {
	Data  []Resource `json:"data"`
	Links struct {
		Self string  `json:"self"`
		Next *string `json:"next"`
	} `json:"links"`
}

// CurrentUser is the identity probe result for the authenticated PCO user.
type CurrentUser struct {
	ID                string
	FirstName         string
	LastName          string
	PeoplePermissions string
}

// PermissionManager is the people permission level the integration requires.
// A connection whose user drops below it is treated as unusable.
const PermissionManager = "Manager"

// HasManagerPermission reports whether the probed user can administer people
// data. PCO's permission ladder is Viewer < Editor < Manager.
func (u CurrentUser) HasManagerPermission() bool {
	return u.PeoplePermissions == PermissionManager
}

// StatusError is a non-2xx response from the upstream API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pco: upstream returned status %d: %s", e.Code, e.Body)
}

// IsAuthError reports whether the status indicates the credential itself is
// bad (as opposed to a transient upstream failure).
func (e *StatusError) IsAuthError() bool {
	return e.Code == 401 || e.Code == 403
}
