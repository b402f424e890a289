package directory

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/auth"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/logging"
)

var dirLog = logging.NewLogger("directory")

// Client calls the Microsoft Graph API. It holds no sync state; every method
// is a single blocking request.
type Client struct {
	baseURL string
	tokens  auth.TokenSource
	client  *http.Client
}

// NewClient builds a Graph client rooted at baseURL (e.g.
// https://graph.microsoft.com/v1.0).
func NewClient(baseURL string, tokens auth.TokenSource, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: timeout},
	}
}

// TransitiveMembers returns the flattened recursive membership of a group.
// The closure is computed server-side; this is a single call.
func (c *Client) TransitiveMembers(groupID string) ([]Member, error) {
	return c.listMembers("transitiveMembers", "/groups/"+url.PathEscape(groupID)+"/transitiveMembers", nil)
}

// GroupMembers returns the direct members of a group.
func (c *Client) GroupMembers(groupID string) ([]Member, error) {
	return c.listMembers("members", "/groups/"+url.PathEscape(groupID)+"/members", nil)
}

// Group fetches a single group record by identifier.
func (c *Client) Group(groupID string) (*Group, error) {
	body, err := c.get("group", "/groups/"+url.PathEscape(groupID), nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse group response: %w", err)
	}
	return &Group{ID: raw.ID, DisplayName: raw.DisplayName}, nil
}

// GroupsByNamePrefix lists groups whose display name starts with name.
func (c *Client) GroupsByNamePrefix(name string) ([]Group, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("startswith(displayName,'%s')", escapeFilterValue(name)))
	return c.listGroups("groupsByNamePrefix", query)
}

// GroupsByName lists groups whose display name exactly equals name.
func (c *Client) GroupsByName(name string) ([]Group, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("displayName eq '%s'", escapeFilterValue(name)))
	return c.listGroups("groupsByName", query)
}

// UsersByDisplayName lists users whose display name exactly equals name.
func (c *Client) UsersByDisplayName(name string) ([]Member, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("displayName eq '%s'", escapeFilterValue(name)))
	return c.listMembers("usersByDisplayName", "/users", query)
}

func (c *Client) listGroups(op string, query url.Values) ([]Group, error) {
	body, err := c.get(op, "/groups", query)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Value []struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", op, err)
	}

	groups := make([]Group, 0, len(raw.Value))
	for _, g := range raw.Value {
		groups = append(groups, Group{ID: g.ID, DisplayName: g.DisplayName})
	}
	return groups, nil
}

func (c *Client) listMembers(op, path string, query url.Values) ([]Member, error) {
	body, err := c.get(op, path, query)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Value []rawMember `json:"value"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", op, err)
	}

	members := make([]Member, 0, len(raw.Value))
	for _, m := range raw.Value {
		members = append(members, m.member())
	}
	return members, nil
}

func (c *Client) get(op, path string, query url.Values) ([]byte, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	dirLog.Debug("GET %s", reqURL)

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// escapeFilterValue escapes single quotes per the OData filter grammar.
func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
