package workingset

// GroupRecord is the persisted form of a resolved sub-group. Only the display
// name is retained; service-principal discovery re-resolves the identifier by
// name.
type GroupRecord struct {
	DisplayName string `json:"displayName"`
}

// UserRecord is the persisted form of a resolved user.
type UserRecord struct {
	UserPrincipalName string `json:"userPrincipalName"`
	GivenName         string `json:"givenName,omitempty"`
	FamilyName        string `json:"familyName,omitempty"`
	DisplayName       string `json:"displayName"`
}

// ServicePrincipalRecord is the persisted form of a discovered service
// principal.
type ServicePrincipalRecord struct {
	AccountID     string `json:"account_id"`
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	ApplicationID string `json:"applicationId"`
	Active        bool   `json:"active"`
}
