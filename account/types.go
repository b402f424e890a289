package account

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that an entity does not exist in the account. It is
// distinct from APIError so callers never mistake an outage for absence.
var ErrNotFound = errors.New("not found in account")

// APIError is returned for transport failures and non-success statuses from
// the account service.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("account %s failed with status %d: %s", e.Op, e.Status, e.Body)
}

// User is an account-side user identity.
type User struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
	UserName    string `json:"userName"`
	Active      bool   `json:"active"`
}

// ServicePrincipal is an account-side application identity.
type ServicePrincipal struct {
	ID            string `json:"id,omitempty"`
	DisplayName   string `json:"displayName"`
	ApplicationID string `json:"applicationId"`
	Active        bool   `json:"active"`
}

// Member is one entry in a group's membership roster (SCIM complex value).
type Member struct {
	Display string `json:"display,omitempty"`
	Value   string `json:"value"`
	Type    string `json:"type,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// Group is an account-side group with its membership roster.
type Group struct {
	ID          string   `json:"id,omitempty"`
	DisplayName string   `json:"displayName"`
	Members     []Member `json:"members,omitempty"`
}
