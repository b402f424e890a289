package directory

import "fmt"

// Kind discriminates directory member entities. It is derived from the
// @odata.type field at the client boundary so the rest of the pipeline never
// inspects raw payload keys.
type Kind int

const (
	KindUnknown Kind = iota
	KindGroup
	KindUser
	KindServicePrincipal
)

const (
	odataTypeGroup            = "#microsoft.graph.group"
	odataTypeUser             = "#microsoft.graph.user"
	odataTypeServicePrincipal = "#microsoft.graph.servicePrincipal"
)

func kindFromODataType(t string) Kind {
	switch t {
	case odataTypeGroup:
		return KindGroup
	case odataTypeUser:
		return KindUser
	case odataTypeServicePrincipal:
		return KindServicePrincipal
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindUser:
		return "user"
	case KindServicePrincipal:
		return "servicePrincipal"
	default:
		return "unknown"
	}
}

// Member is a directory entity as it appears in a group membership listing.
// Kind-specific fields are populated only for the matching kind.
type Member struct {
	Kind              Kind
	ID                string
	DisplayName       string
	UserPrincipalName string
	GivenName         string
	Surname           string
	AppID             string
}

// Group is a directory group record.
type Group struct {
	ID          string
	DisplayName string
}

// rawMember is the wire shape of a Graph directoryObject member.
type rawMember struct {
	ODataType         string `json:"@odata.type"`
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	GivenName         string `json:"givenName"`
	Surname           string `json:"surname"`
	AppID             string `json:"appId"`
}

func (r rawMember) member() Member {
	return Member{
		Kind:              kindFromODataType(r.ODataType),
		ID:                r.ID,
		DisplayName:       r.DisplayName,
		UserPrincipalName: r.UserPrincipalName,
		GivenName:         r.GivenName,
		Surname:           r.Surname,
		AppID:             r.AppID,
	}
}

// APIError is returned when the directory service answers with a non-success
// status or the transport fails mid-request.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory %s failed with status %d: %s", e.Op, e.Status, e.Body)
}
