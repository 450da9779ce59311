// Package identity is the Keycloak adapter: realm users, groups and group membership.
//
// All calls go through the admin REST API of one realm with the bearer token of the session
// the client was built with.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/restclient"
)

// ServiceName labels identity requests in metrics and traces.
const ServiceName = "identity"

// NoPasswordPolicy is reported when the realm has no explicit password policy.
const NoPasswordPolicy = "No explicit policy found (check Keycloak Console)"

// User is a realm user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// Group is a realm group.
type Group struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Path      string  `json:"path,omitempty"`
	SubGroups []Group `json:"subGroups,omitempty"`
}

// NewUser describes a user to create. Email defaults to {username}@{realm}.
type NewUser struct {
	Username string
	Password string
	Email    string
}

type credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	Username      string       `json:"username"`
	Enabled       bool         `json:"enabled"`
	Email         string       `json:"email"`
	EmailVerified bool         `json:"emailVerified"`
	Credentials   []credential `json:"credentials"`
}

type realmRepresentation struct {
	PasswordPolicy *string `json:"passwordPolicy,omitempty"`
}

// Client talks to one Keycloak realm.
type Client struct {
	rest     *restclient.Client
	restOpts []restclient.Option
	realm    string
	logger   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the adapter logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithREST passes options to the underlying REST client.
func WithREST(opts ...restclient.Option) Option {
	return func(c *Client) {
		c.restOpts = append(c.restOpts, opts...)
	}
}

// NewClient returns an adapter for realm on the Keycloak server at baseURL.
func NewClient(baseURL, realm string, tokens restclient.TokenSource, opts ...Option) *Client {
	c := &Client{
		realm:  realm,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	adminURL := strings.TrimRight(baseURL, "/") + "/admin/realms/" + url.PathEscape(realm)
	c.rest = restclient.New(adminURL, ServiceName, tokens, c.restOpts...)
	c.logger = c.logger.With().Str("component", "identity").Logger()
	return c
}

// TokenURL is the password-grant endpoint for realm.
func TokenURL(baseURL, realm string) string {
	return strings.TrimRight(baseURL, "/") + "/realms/" + url.PathEscape(realm) + "/protocol/openid-connect/token"
}

// FindUserByUsername returns the user with this username, or nil when none exists. Usernames
// are stored lowercased, so the match ignores case.
func (c *Client) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	query := url.Values{"username": {username}, "exact": {"true"}}
	resp, err := c.rest.Do(ctx, http.MethodGet, "/users", query, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK(http.StatusOK) {
		return nil, resp.Err("Get user " + username)
	}

	var users []User
	if err := resp.Decode(&users); err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// CreateUser creates an enabled user with a permanent password and returns its ID. When the
// username is taken the existing user's ID is returned and nothing is changed.
func (c *Client) CreateUser(ctx context.Context, nu NewUser) (string, error) {
	existing, err := c.FindUserByUsername(ctx, nu.Username)
	if err != nil {
		return "", err
	}
	if existing != nil {
		c.logger.Debug().Str("username", nu.Username).Str("user_id", existing.ID).Msg("User already exists")
		return existing.ID, nil
	}

	email := nu.Email
	if email == "" {
		email = nu.Username + "@" + c.realm
	}
	payload := userRepresentation{
		Username:      nu.Username,
		Enabled:       true,
		Email:         email,
		EmailVerified: true,
		Credentials:   []credential{{Type: "password", Value: nu.Password, Temporary: false}},
	}

	resp, err := c.rest.Do(ctx, http.MethodPost, "/users", nil, payload)
	if err != nil {
		return "", err
	}
	switch {
	case resp.OK(http.StatusCreated):
		if id := idFromLocation(resp.Header.Get("Location")); id != "" {
			c.logger.Info().Str("username", nu.Username).Str("user_id", id).Msg("User created")
			return id, nil
		}
	case resp.OK(http.StatusConflict):
		c.logger.Debug().Str("username", nu.Username).Msg("User created concurrently")
	default:
		return "", resp.Err("Create user " + nu.Username)
	}

	user, err := c.FindUserByUsername(ctx, nu.Username)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", fmt.Errorf("user %s not found after creation", nu.Username)
	}
	return user.ID, nil
}

// SearchUsers runs Keycloak's fuzzy search over username, email and names. Results are not
// exact; callers filter.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, "/users", url.Values{"search": {query}}, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK(http.StatusOK) {
		return nil, resp.Err("Search users " + query)
	}
	var users []User
	if err := resp.Decode(&users); err != nil {
		return nil, err
	}
	return users, nil
}

// FindGroupByName returns the group with exactly this name, or nil. The groups endpoint only
// supports substring search, so the match is done here.
func (c *Client) FindGroupByName(ctx context.Context, name string) (*Group, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, "/groups", url.Values{"search": {name}}, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK(http.StatusOK) {
		return nil, resp.Err("Get group " + name)
	}
	var groups []Group
	if err := resp.Decode(&groups); err != nil {
		return nil, err
	}
	return findGroup(groups, name), nil
}

func findGroup(groups []Group, name string) *Group {
	for i := range groups {
		if groups[i].Name == name {
			g := groups[i]
			g.SubGroups = nil
			return &g
		}
		if g := findGroup(groups[i].SubGroups, name); g != nil {
			return g
		}
	}
	return nil
}

// ListUserGroups returns the groups userID is a direct member of.
func (c *Client) ListUserGroups(ctx context.Context, userID string) ([]Group, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/groups", nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK(http.StatusOK) {
		return nil, resp.Err("Get groups for user " + userID)
	}
	var groups []Group
	if err := resp.Decode(&groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// AddUserToGroup makes userID a member of groupID. Success means the membership exists, not
// necessarily that it is new.
func (c *Client) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	p := "/users/" + url.PathEscape(userID) + "/groups/" + url.PathEscape(groupID)
	resp, err := c.rest.Do(ctx, http.MethodPut, p, nil, nil)
	if err != nil {
		return err
	}
	if !resp.OK(http.StatusOK, http.StatusCreated, http.StatusNoContent) {
		return resp.Err(fmt.Sprintf("Add user %s to group %s", userID, groupID))
	}
	return nil
}

// PasswordPolicy describes the realm password policy.
func (c *Client) PasswordPolicy(ctx context.Context) (string, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, "", nil, nil)
	if err != nil {
		return "", err
	}
	if !resp.OK(http.StatusOK) {
		return "", resp.Err("Get Realm Policy")
	}
	var realm realmRepresentation
	if err := resp.Decode(&realm); err != nil {
		return "", err
	}
	if realm.PasswordPolicy == nil || *realm.PasswordPolicy == "" {
		return NoPasswordPolicy, nil
	}
	return *realm.PasswordPolicy, nil
}

func idFromLocation(location string) string {
	if location == "" {
		return ""
	}
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	id := path.Base(u.Path)
	if id == "." || id == "/" || id == "users" {
		return ""
	}
	return id
}
