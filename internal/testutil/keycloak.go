// Package testutil provides in-process fakes of the identity and orchestration services for
// adapter and workflow tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type fakeUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Enabled  bool   `json:"enabled"`
}

type fakeGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`

	// hiddenFor is the number of group searches that still miss this group.
	hiddenFor int
}

// Keycloak is a fake realm: token endpoint, users, groups and memberships.
type Keycloak struct {
	*httptest.Server
	Realm string

	// AddMemberStatus is the success status returned by membership PUTs (default 204).
	AddMemberStatus int
	// PasswordPolicy is served from the realm endpoint when non-empty.
	PasswordPolicy string

	mu        sync.Mutex
	users     []*fakeUser
	passwords map[string]string
	groups    []*fakeGroup
	members   map[string][]string
	creates   int
	logins    map[string]int
}

// NewKeycloak starts a fake realm with a platform admin "admin"/"admin".
func NewKeycloak(t *testing.T, realm string) *Keycloak {
	t.Helper()
	k := &Keycloak{
		Realm:           realm,
		AddMemberStatus: http.StatusNoContent,
		passwords:       map[string]string{},
		members:         map[string][]string{},
		logins:          map[string]int{},
	}
	k.Server = httptest.NewServer(http.HandlerFunc(k.serve))
	t.Cleanup(k.Close)
	k.AddUser("admin", "admin")
	return k
}

// AddUser registers a user and returns its ID.
func (k *Keycloak) AddUser(username, password string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.addUserLocked(username, password, username+"@"+k.Realm)
}

// addUserLocked stores the username lowercased, as the real service does.
func (k *Keycloak) addUserLocked(username, password, email string) string {
	username = strings.ToLower(username)
	u := &fakeUser{ID: uuid.NewString(), Username: username, Email: email, Enabled: true}
	k.users = append(k.users, u)
	k.passwords[username] = password
	return u.ID
}

// AddGroup registers a group visible immediately and returns its ID.
func (k *Keycloak) AddGroup(name string) string {
	return k.AddGroupAfter(name, 0)
}

// AddGroupAfter registers a group that the first n group searches do not return, the way
// groups created asynchronously by the orchestration service show up late.
func (k *Keycloak) AddGroupAfter(name string, n int) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	g := &fakeGroup{ID: uuid.NewString(), Name: name, Path: "/" + name, hiddenFor: n}
	k.groups = append(k.groups, g)
	return g.ID
}

// UserID returns the ID of username, or "".
func (k *Keycloak) UserID(username string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, u := range k.users {
		if strings.EqualFold(u.Username, username) {
			return u.ID
		}
	}
	return ""
}

// GroupsOf returns the group names userID belongs to.
func (k *Keycloak) GroupsOf(userID string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	var names []string
	for _, gid := range k.members[userID] {
		if g := k.groupByIDLocked(gid); g != nil {
			names = append(names, g.Name)
		}
	}
	return names
}

// AddMember puts userID in the named group directly.
func (k *Keycloak) AddMember(userID, groupName string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, g := range k.groups {
		if g.Name == groupName {
			k.members[userID] = append(k.members[userID], g.ID)
			return
		}
	}
}

// Creates is the number of user-creation requests that reached the server.
func (k *Keycloak) Creates() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.creates
}

// Logins is the number of successful token exchanges for username.
func (k *Keycloak) Logins(username string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.logins[strings.ToLower(username)]
}

func (k *Keycloak) groupByIDLocked(id string) *fakeGroup {
	for _, g := range k.groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func (k *Keycloak) userByIDLocked(id string) *fakeUser {
	for _, u := range k.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (k *Keycloak) serve(w http.ResponseWriter, r *http.Request) {
	k.mu.Lock()
	defer k.mu.Unlock()

	realmPath := "/realms/" + k.Realm
	adminPath := "/admin/realms/" + k.Realm

	switch {
	case r.URL.Path == realmPath+"/protocol/openid-connect/token":
		k.token(w, r)
		return
	case r.URL.Path == realmPath && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"realm": k.Realm})
		return
	case !strings.HasPrefix(r.URL.Path, adminPath):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "HTTP 401 Unauthorized"})
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, adminPath), "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "":
		policy := map[string]any{"realm": k.Realm}
		if k.PasswordPolicy != "" {
			policy["passwordPolicy"] = k.PasswordPolicy
		}
		writeJSON(w, http.StatusOK, policy)
	case len(parts) == 1 && parts[0] == "users" && r.Method == http.MethodGet:
		k.listUsers(w, r)
	case len(parts) == 1 && parts[0] == "users" && r.Method == http.MethodPost:
		k.createUser(w, r)
	case len(parts) == 1 && parts[0] == "groups":
		k.searchGroups(w, r)
	case len(parts) == 3 && parts[0] == "users" && parts[2] == "groups":
		k.userGroups(w, parts[1])
	case len(parts) == 4 && parts[0] == "users" && parts[2] == "groups" && r.Method == http.MethodPut:
		k.addMember(w, parts[1], parts[3])
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (k *Keycloak) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	username := strings.ToLower(r.PostForm.Get("username"))
	password, ok := k.passwords[username]
	if !ok || password != r.PostForm.Get("password") || r.PostForm.Get("grant_type") != "password" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid user credentials",
		})
		return
	}
	k.logins[username]++
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "tok-" + username,
		"token_type":   "Bearer",
		"expires_in":   300,
	})
}

// listUsers matches by substring for both username= and search=, like the fuzzy search of the
// real service; exact filtering is the client's job.
func (k *Keycloak) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("username")
	if q == "" {
		q = r.URL.Query().Get("search")
	}
	out := []fakeUser{}
	for _, u := range k.users {
		if strings.Contains(u.Username, strings.ToLower(q)) {
			out = append(out, *u)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (k *Keycloak) createUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string `json:"username"`
		Email       string `json:"email"`
		Credentials []struct {
			Value string `json:"value"`
		} `json:"credentials"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"errorMessage": "invalid user"})
		return
	}
	k.creates++
	for _, u := range k.users {
		if strings.EqualFold(u.Username, body.Username) {
			writeJSON(w, http.StatusConflict, map[string]string{"errorMessage": "User exists with same username"})
			return
		}
	}
	password := ""
	if len(body.Credentials) > 0 {
		password = body.Credentials[0].Value
	}
	id := k.addUserLocked(body.Username, password, body.Email)
	w.Header().Set("Location", k.URL+"/admin/realms/"+k.Realm+"/users/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (k *Keycloak) searchGroups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("search")
	out := []fakeGroup{}
	for _, g := range k.groups {
		if !strings.Contains(g.Name, q) {
			continue
		}
		if g.hiddenFor > 0 {
			g.hiddenFor--
			continue
		}
		out = append(out, *g)
	}
	writeJSON(w, http.StatusOK, out)
}

func (k *Keycloak) userGroups(w http.ResponseWriter, userID string) {
	if k.userByIDLocked(userID) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		return
	}
	out := []fakeGroup{}
	for _, gid := range k.members[userID] {
		if g := k.groupByIDLocked(gid); g != nil {
			out = append(out, *g)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (k *Keycloak) addMember(w http.ResponseWriter, userID, groupID string) {
	if k.userByIDLocked(userID) == nil || k.groupByIDLocked(groupID) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"errorMessage": "Could not find group by id"})
		return
	}
	for _, gid := range k.members[userID] {
		if gid == groupID {
			w.WriteHeader(k.AddMemberStatus)
			return
		}
	}
	k.members[userID] = append(k.members[userID], groupID)
	w.WriteHeader(k.AddMemberStatus)
}
