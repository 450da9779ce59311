package identity

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/errdefs"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/restclient"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/testutil"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func newTestClient(kc *testutil.Keycloak) *Client {
	return NewClient(kc.URL, kc.Realm, staticToken("tok-admin"), WithREST(restclient.WithHTTPClient(kc.Client())))
}

func TestCreateUserIsIdempotent(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	c := newTestClient(kc)
	ctx := context.Background()

	first, err := c.CreateUser(ctx, NewUser{Username: "acme-admin", Password: "pw"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	second, err := c.CreateUser(ctx, NewUser{Username: "acme-admin", Password: "other"})
	if err != nil {
		t.Fatalf("second CreateUser() error = %v", err)
	}

	if first == "" || first != second {
		t.Errorf("ids = %q, %q, want equal and non-empty", first, second)
	}
	if got := kc.Creates(); got != 1 {
		t.Errorf("creation requests = %d, want 1", got)
	}

	u, err := c.FindUserByUsername(ctx, "acme-admin")
	if err != nil || u == nil {
		t.Fatalf("FindUserByUsername() = %v, %v", u, err)
	}
	if u.Email != "acme-admin@master" {
		t.Errorf("Email = %q, want default {username}@{realm}", u.Email)
	}
}

func TestCreateUserExplicitEmail(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	c := newTestClient(kc)

	if _, err := c.CreateUser(context.Background(), NewUser{Username: "bob", Password: "pw", Email: "bob@example.com"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	u, _ := c.FindUserByUsername(context.Background(), "bob")
	if u == nil || u.Email != "bob@example.com" {
		t.Errorf("user = %+v", u)
	}
}

func TestFindUserByUsernameIsExact(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	kc.AddUser("acme-admin-2", "pw")
	c := newTestClient(kc)

	u, err := c.FindUserByUsername(context.Background(), "acme-admin")
	if err != nil {
		t.Fatalf("FindUserByUsername() error = %v", err)
	}
	if u != nil {
		t.Errorf("FindUserByUsername() = %+v, want nil for a prefix match", u)
	}
}

func TestCreateUserMixedCase(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	c := newTestClient(kc)
	ctx := context.Background()

	id, err := c.CreateUser(ctx, NewUser{Username: "Bob", Password: "pw"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if id == "" || id != kc.UserID("bob") {
		t.Errorf("CreateUser() = %q, want the stored user %q", id, kc.UserID("bob"))
	}

	again, err := c.CreateUser(ctx, NewUser{Username: "BOB", Password: "pw"})
	if err != nil || again != id {
		t.Errorf("second CreateUser() = %q, %v, want %q", again, err, id)
	}
	if got := kc.Creates(); got != 1 {
		t.Errorf("creation requests = %d, want 1", got)
	}

	u, err := c.FindUserByUsername(ctx, "Bob")
	if err != nil || u == nil || u.ID != id {
		t.Errorf("FindUserByUsername(Bob) = %+v, %v", u, err)
	}
}

func TestFindGroupByNameIsExact(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	kc.AddGroup("org-admin-group-legacy")
	id := kc.AddGroup("org-admin-group")
	c := newTestClient(kc)

	g, err := c.FindGroupByName(context.Background(), "org-admin-group")
	if err != nil {
		t.Fatalf("FindGroupByName() error = %v", err)
	}
	if g == nil || g.ID != id {
		t.Errorf("FindGroupByName() = %+v, want id %s", g, id)
	}

	g, err = c.FindGroupByName(context.Background(), "missing")
	if err != nil || g != nil {
		t.Errorf("FindGroupByName(missing) = %+v, %v", g, err)
	}
}

func TestFindGroupInSubGroups(t *testing.T) {
	groups := []Group{{ID: "1", Name: "parent", SubGroups: []Group{{ID: "2", Name: "child"}}}}
	if g := findGroup(groups, "child"); g == nil || g.ID != "2" {
		t.Errorf("findGroup(child) = %+v", g)
	}
}

func TestAddUserToGroup(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent} {
		kc := testutil.NewKeycloak(t, "master")
		kc.AddMemberStatus = status
		uid := kc.AddUser("alice", "pw")
		gid := kc.AddGroup("org-admin-group")
		c := newTestClient(kc)

		if err := c.AddUserToGroup(context.Background(), uid, gid); err != nil {
			t.Fatalf("status %d: AddUserToGroup() error = %v", status, err)
		}
		groups, err := c.ListUserGroups(context.Background(), uid)
		if err != nil {
			t.Fatalf("ListUserGroups() error = %v", err)
		}
		if len(groups) != 1 || groups[0].Name != "org-admin-group" {
			t.Errorf("status %d: groups = %+v", status, groups)
		}
	}
}

func TestAddUserToMissingGroup(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	uid := kc.AddUser("alice", "pw")
	c := newTestClient(kc)

	err := c.AddUserToGroup(context.Background(), uid, "no-such-group")
	if !errors.Is(err, errdefs.ErrRequestFailed) {
		t.Fatalf("AddUserToGroup() error = %v, want request failure", err)
	}
	var reqErr *errdefs.RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusNotFound {
		t.Errorf("error = %#v", err)
	}
}

func TestSearchUsers(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	kc.AddUser("acme-admin", "pw")
	kc.AddUser("acme-ops", "pw")
	c := newTestClient(kc)

	users, err := c.SearchUsers(context.Background(), "acme")
	if err != nil {
		t.Fatalf("SearchUsers() error = %v", err)
	}
	var names []string
	for _, u := range users {
		names = append(names, u.Username)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"acme-admin", "acme-ops"}) {
		t.Errorf("SearchUsers() = %v", names)
	}
}

func TestPasswordPolicy(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	c := newTestClient(kc)

	got, err := c.PasswordPolicy(context.Background())
	if err != nil {
		t.Fatalf("PasswordPolicy() error = %v", err)
	}
	if got != NoPasswordPolicy {
		t.Errorf("PasswordPolicy() = %q, want default", got)
	}

	kc.PasswordPolicy = "length(8) and digits(1)"
	got, _ = c.PasswordPolicy(context.Background())
	if got != "length(8) and digits(1)" {
		t.Errorf("PasswordPolicy() = %q", got)
	}
}

func TestUnauthorizedMapsToAuthentication(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	c := NewClient(kc.URL, kc.Realm, staticToken("bogus"), WithREST(restclient.WithHTTPClient(kc.Client())))

	_, err := c.FindUserByUsername(context.Background(), "admin")
	if !errdefs.IsAuthentication(err) {
		t.Fatalf("FindUserByUsername() error = %v, want authentication failure", err)
	}
}

func TestIDFromLocation(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"https://kc/admin/realms/master/users/abc-123", "abc-123"},
		{"", ""},
		{"https://kc/admin/realms/master/users", ""},
	}
	for _, tt := range tests {
		if got := idFromLocation(tt.location); got != tt.want {
			t.Errorf("idFromLocation(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}
}

func TestTokenURL(t *testing.T) {
	got := TokenURL("https://keycloak.example.com/", "master")
	want := "https://keycloak.example.com/realms/master/protocol/openid-connect/token"
	if got != want {
		t.Errorf("TokenURL() = %q, want %q", got, want)
	}
}
