package syncer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kpkab/nested-ad-group-to-flat-db-group/account"
	"github.com/kpkab/nested-ad-group-to-flat-db-group/directory"
)

type staticTokens string

func (s staticTokens) Token() (string, error) { return string(s), nil }

// graph payload helpers

func graphGroup(id, name string) map[string]interface{} {
	return map[string]interface{}{"@odata.type": "#microsoft.graph.group", "id": id, "displayName": name}
}

func graphUser(id, name, upn string) map[string]interface{} {
	return map[string]interface{}{
		"@odata.type": "#microsoft.graph.user", "id": id, "displayName": name,
		"userPrincipalName": upn, "givenName": "Given", "surname": "Family",
	}
}

func graphSP(id, name, appID string) map[string]interface{} {
	m := map[string]interface{}{"@odata.type": "#microsoft.graph.servicePrincipal", "id": id, "displayName": name}
	if appID != "" {
		m["appId"] = appID
	}
	return m
}

// fakeDirectory serves a canned slice of the Graph API.
type fakeDirectory struct {
	groups     map[string]map[string]interface{}   // group id → group payload
	transitive map[string][]map[string]interface{} // group id → transitive members
	members    map[string][]map[string]interface{} // group id → direct members
	users      []map[string]interface{}

	srv *httptest.Server
}

func newFakeDirectory(t *testing.T) *fakeDirectory {
	fd := &fakeDirectory{
		groups:     map[string]map[string]interface{}{},
		transitive: map[string][]map[string]interface{}{},
		members:    map[string][]map[string]interface{}{},
	}
	fd.srv = httptest.NewServer(http.HandlerFunc(fd.handle))
	t.Cleanup(fd.srv.Close)
	return fd
}

func (fd *fakeDirectory) addGroup(id, name string) {
	fd.groups[id] = graphGroup(id, name)
}

func (fd *fakeDirectory) client() *directory.Client {
	return directory.NewClient(fd.srv.URL, staticTokens("tok"), 5*time.Second)
}

func (fd *fakeDirectory) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.Split(path, "/")

	writeValue := func(value []map[string]interface{}) {
		if value == nil {
			value = []map[string]interface{}{}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"value": value})
	}

	switch {
	case path == "groups":
		writeValue(fd.filterGroups(r.URL.Query().Get("$filter")))

	case path == "users":
		writeValue(filterByDisplayName(fd.users, exactFilterName(r.URL.Query().Get("$filter"))))

	case len(parts) == 3 && parts[0] == "groups" && parts[2] == "transitiveMembers":
		writeValue(fd.transitive[parts[1]])

	case len(parts) == 3 && parts[0] == "groups" && parts[2] == "members":
		writeValue(fd.members[parts[1]])

	case len(parts) == 2 && parts[0] == "groups":
		grp, ok := fd.groups[parts[1]]
		if !ok {
			http.Error(w, `{"error":{"code":"Request_ResourceNotFound"}}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(grp)

	default:
		http.Error(w, "unexpected path "+r.URL.Path, http.StatusBadRequest)
	}
}

func (fd *fakeDirectory) filterGroups(filter string) []map[string]interface{} {
	var out []map[string]interface{}
	if prefix, ok := strings.CutPrefix(filter, "startswith(displayName,'"); ok {
		prefix = strings.TrimSuffix(prefix, "')")
		for _, g := range fd.groups {
			if strings.HasPrefix(g["displayName"].(string), prefix) {
				out = append(out, g)
			}
		}
		return out
	}
	name := exactFilterName(filter)
	for _, g := range fd.groups {
		if g["displayName"] == name {
			out = append(out, g)
		}
	}
	return out
}

func exactFilterName(filter string) string {
	name, _ := strings.CutPrefix(filter, "displayName eq '")
	return strings.TrimSuffix(name, "'")
}

func filterByDisplayName(items []map[string]interface{}, name string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, item := range items {
		if item["displayName"] == name {
			out = append(out, item)
		}
	}
	return out
}

// fakeAccount is a stateful in-memory slice of the SCIM account API.
type fakeAccount struct {
	mu     sync.Mutex
	users  []account.User
	sps    []account.ServicePrincipal
	groups []account.Group

	userCreates  int
	spCreates    int
	groupCreates int
	memberPuts   int
	requests     int

	failUserNamed string // CreateUser for this display name returns 500

	srv *httptest.Server
}

func newFakeAccount(t *testing.T) *fakeAccount {
	fa := &fakeAccount{}
	fa.srv = httptest.NewServer(http.HandlerFunc(fa.handle))
	t.Cleanup(fa.srv.Close)
	return fa
}

func (fa *fakeAccount) client() *account.Client {
	return account.NewClient(fa.srv.URL, "scim-token", 5*time.Second)
}

func (fa *fakeAccount) handle(w http.ResponseWriter, r *http.Request) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	fa.requests++

	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.Split(path, "/")
	name := exactFilterName(r.URL.Query().Get("filter"))

	switch {
	case path == "Users" && r.Method == http.MethodGet:
		var matches []account.User
		for _, u := range fa.users {
			if u.DisplayName == name {
				matches = append(matches, u)
			}
		}
		writeList(w, len(matches), matches)

	case path == "Users" && r.Method == http.MethodPost:
		var u account.User
		json.NewDecoder(r.Body).Decode(&u)
		if u.DisplayName == fa.failUserNamed {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		u.ID = uuid.NewString()
		fa.users = append(fa.users, u)
		fa.userCreates++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(u)

	case path == "ServicePrincipals" && r.Method == http.MethodGet:
		var matches []account.ServicePrincipal
		for _, sp := range fa.sps {
			if sp.DisplayName == name {
				matches = append(matches, sp)
			}
		}
		writeList(w, len(matches), matches)

	case path == "ServicePrincipals" && r.Method == http.MethodPost:
		var sp account.ServicePrincipal
		json.NewDecoder(r.Body).Decode(&sp)
		sp.ID = uuid.NewString()
		fa.sps = append(fa.sps, sp)
		fa.spCreates++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sp)

	case path == "Groups" && r.Method == http.MethodGet:
		var matches []account.Group
		for _, g := range fa.groups {
			if g.DisplayName == name {
				matches = append(matches, g)
			}
		}
		writeList(w, len(matches), matches)

	case path == "Groups" && r.Method == http.MethodPost:
		var g account.Group
		json.NewDecoder(r.Body).Decode(&g)
		g.ID = uuid.NewString()
		fa.groups = append(fa.groups, g)
		fa.groupCreates++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(g)

	case len(parts) == 2 && parts[0] == "Groups" && r.Method == http.MethodGet:
		for _, g := range fa.groups {
			if g.ID == parts[1] {
				json.NewEncoder(w).Encode(g)
				return
			}
		}
		http.Error(w, "no such group", http.StatusNotFound)

	case len(parts) == 2 && parts[0] == "Groups" && r.Method == http.MethodPut:
		var updated account.Group
		json.NewDecoder(r.Body).Decode(&updated)
		for i := range fa.groups {
			if fa.groups[i].ID == parts[1] {
				fa.groups[i].Members = updated.Members
				fa.memberPuts++
				json.NewEncoder(w).Encode(fa.groups[i])
				return
			}
		}
		http.Error(w, "no such group", http.StatusNotFound)

	default:
		http.Error(w, "unexpected path "+r.URL.Path, http.StatusBadRequest)
	}
}

func writeList(w http.ResponseWriter, total int, resources interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"totalResults": total,
		"Resources":    resources,
	})
}

func (fa *fakeAccount) groupByName(name string) *account.Group {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	for i := range fa.groups {
		if fa.groups[i].DisplayName == name {
			return &fa.groups[i]
		}
	}
	return nil
}

func (fa *fakeAccount) seedUser(displayName string) account.User {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	u := account.User{ID: uuid.NewString(), DisplayName: displayName, UserName: displayName, Active: true}
	fa.users = append(fa.users, u)
	return u
}

func (fa *fakeAccount) seedGroup(displayName string, members ...account.Member) account.Group {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	g := account.Group{ID: uuid.NewString(), DisplayName: displayName, Members: members}
	fa.groups = append(fa.groups, g)
	return g
}
