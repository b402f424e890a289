package account

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/logging"
)

var acctLog = logging.NewLogger("account")

// Client calls the account's SCIM identity APIs. It holds no sync state;
// every method is a single blocking request.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a SCIM client rooted at baseURL (e.g.
// https://accounts.azuredatabricks.net/api/2.0/accounts/{id}/scim/v2).
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// FindUserByDisplayName returns the first account user with the given display
// name, or ErrNotFound when no user matches.
func (c *Client) FindUserByDisplayName(name string) (*User, error) {
	var list struct {
		TotalResults int    `json:"totalResults"`
		Resources    []User `json:"Resources"`
	}
	if err := c.list("findUser", "/Users", name, &list); err != nil {
		return nil, err
	}
	if len(list.Resources) == 0 {
		return nil, fmt.Errorf("user %q: %w", name, ErrNotFound)
	}
	return &list.Resources[0], nil
}

// CreateUser creates an account user and returns the record with its
// server-assigned identifier.
func (c *Client) CreateUser(u User) (*User, error) {
	var created User
	if err := c.post("createUser", "/Users", u, &created); err != nil {
		return nil, err
	}
	acctLog.Info("Created account user %s (id %s)", created.DisplayName, created.ID)
	return &created, nil
}

// FindServicePrincipalByDisplayName returns the first account service
// principal with the given display name, or ErrNotFound when none matches.
func (c *Client) FindServicePrincipalByDisplayName(name string) (*ServicePrincipal, error) {
	var list struct {
		TotalResults int                `json:"totalResults"`
		Resources    []ServicePrincipal `json:"Resources"`
	}
	if err := c.list("findServicePrincipal", "/ServicePrincipals", name, &list); err != nil {
		return nil, err
	}
	if len(list.Resources) == 0 {
		return nil, fmt.Errorf("service principal %q: %w", name, ErrNotFound)
	}
	return &list.Resources[0], nil
}

// CreateServicePrincipal creates an account service principal.
func (c *Client) CreateServicePrincipal(sp ServicePrincipal) (*ServicePrincipal, error) {
	var created ServicePrincipal
	if err := c.post("createServicePrincipal", "/ServicePrincipals", sp, &created); err != nil {
		return nil, err
	}
	acctLog.Info("Created account service principal %s (id %s)", created.DisplayName, created.ID)
	return &created, nil
}

// FindGroupByDisplayName returns the first account group with the given
// display name, including its current membership, or ErrNotFound.
func (c *Client) FindGroupByDisplayName(name string) (*Group, error) {
	var list struct {
		TotalResults int     `json:"totalResults"`
		Resources    []Group `json:"Resources"`
	}
	if err := c.list("findGroup", "/Groups", name, &list); err != nil {
		return nil, err
	}
	if len(list.Resources) == 0 {
		return nil, fmt.Errorf("group %q: %w", name, ErrNotFound)
	}
	return &list.Resources[0], nil
}

// GetGroup fetches a group by account identifier. A 404 maps to ErrNotFound.
func (c *Client) GetGroup(id string) (*Group, error) {
	body, err := c.do("getGroup", http.MethodGet, "/Groups/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var g Group
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, fmt.Errorf("failed to parse group response: %w", err)
	}
	return &g, nil
}

// CreateGroup creates an account group with an empty membership roster.
func (c *Client) CreateGroup(displayName string) (*Group, error) {
	var created Group
	if err := c.post("createGroup", "/Groups", Group{DisplayName: displayName}, &created); err != nil {
		return nil, err
	}
	acctLog.Info("Created account group %s (id %s)", created.DisplayName, created.ID)
	return &created, nil
}

// ReplaceGroupMembers overwrites the group's full membership roster.
func (c *Client) ReplaceGroupMembers(id, displayName string, members []Member) (*Group, error) {
	payload := Group{DisplayName: displayName, Members: members}
	body, err := c.doJSON("updateGroup", http.MethodPut, "/Groups/"+url.PathEscape(id), payload)
	if err != nil {
		return nil, err
	}
	var g Group
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, fmt.Errorf("failed to parse group update response: %w", err)
	}
	return &g, nil
}

func (c *Client) list(op, path, displayName string, out interface{}) error {
	query := url.Values{}
	query.Set("filter", fmt.Sprintf("displayName eq '%s'", displayName))

	body, err := c.do(op, http.MethodGet, path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}

func (c *Client) post(op, path string, payload, out interface{}) error {
	body, err := c.doJSON(op, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}

func (c *Client) doJSON(op, method, path string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}
	return c.do(op, method, path, data)
}

func (c *Client) do(op, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/scim+json")

	acctLog.Debug("%s %s", method, c.baseURL+path)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("account %s: %w", op, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
