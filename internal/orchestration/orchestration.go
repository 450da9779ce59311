// Package orchestration is the adapter for the EMF resource orchestration API: organizations
// and projects whose provisioning finishes asynchronously.
package orchestration

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/restclient"
)

// ServiceName labels orchestration requests in metrics and traces.
const ServiceName = "orchestration"

// Status is a provisioning status indicator.
type Status string

const uuidLen = 36

// StatusIdle is the only status in which a resource is ready.
const StatusIdle Status = "STATUS_INDICATION_IDLE"

// Ready reports whether provisioning finished.
func (s Status) Ready() bool {
	return s == StatusIdle
}

type resourceStatus struct {
	StatusIndicator *string `json:"statusIndicator,omitempty"`
	Message         *string `json:"message,omitempty"`
	UID             *string `json:"uID,omitempty"`
}

type statusBlock struct {
	OrgStatus     *resourceStatus `json:"orgStatus,omitempty"`
	ProjectStatus *resourceStatus `json:"projectStatus,omitempty"`
}

type resource struct {
	Name   *string      `json:"name,omitempty"`
	Status *statusBlock `json:"status,omitempty"`
}

type createRequest struct {
	Description string `json:"description"`
}

// kind describes one resource collection.
type kind struct {
	path    string
	label   string
	details func(*statusBlock) *resourceStatus
}

var (
	orgs = kind{
		path:  "/v1/orgs",
		label: "Org",
		details: func(s *statusBlock) *resourceStatus {
			return s.OrgStatus
		},
	}
	projects = kind{
		path:  "/v1/projects",
		label: "Project",
		details: func(s *statusBlock) *resourceStatus {
			return s.ProjectStatus
		},
	}
)

func (k kind) of(r *resource) *resourceStatus {
	if r == nil || r.Status == nil {
		return nil
	}
	return k.details(r.Status)
}

// Client talks to the orchestration API with the authorization scope of one session.
type Client struct {
	rest     *restclient.Client
	restOpts []restclient.Option
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

// NewClient returns an adapter for the API at baseURL authenticated through tokens.
func NewClient(baseURL string, tokens restclient.TokenSource, opts ...Option) *Client {
	c := &Client{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.rest = restclient.New(baseURL, ServiceName, tokens, c.restOpts...)
	c.logger = c.logger.With().Str("component", "orchestration").Logger()
	return c
}

// CreateOrganization requests a new organization. Provisioning continues after return.
func (c *Client) CreateOrganization(ctx context.Context, name, description string) error {
	return c.create(ctx, orgs, name, description)
}

// CreateProject requests a new project in the caller's organization.
func (c *Client) CreateProject(ctx context.Context, name, description string) error {
	return c.create(ctx, projects, name, description)
}

// OrganizationStatus reads the status indicator. ok is false when the organization cannot be
// read or has no status yet.
func (c *Client) OrganizationStatus(ctx context.Context, name string) (Status, bool, error) {
	return c.status(ctx, orgs, name)
}

// ProjectStatus reads the status indicator of a project.
func (c *Client) ProjectStatus(ctx context.Context, name string) (Status, bool, error) {
	return c.status(ctx, projects, name)
}

// OrganizationUUID reads the server-assigned UUID exactly as reported. ok is false until a
// well-formed UUID is reported.
func (c *Client) OrganizationUUID(ctx context.Context, name string) (string, bool, error) {
	return c.uid(ctx, orgs, name)
}

// ProjectUUID reads the server-assigned UUID of a project.
func (c *Client) ProjectUUID(ctx context.Context, name string) (string, bool, error) {
	return c.uid(ctx, projects, name)
}

// ListOrganizations maps every visible organization to its UUID.
func (c *Client) ListOrganizations(ctx context.Context) (map[string]string, error) {
	return c.list(ctx, orgs)
}

// ListProjects maps every visible project to its UUID.
func (c *Client) ListProjects(ctx context.Context) (map[string]string, error) {
	return c.list(ctx, projects)
}

func (c *Client) create(ctx context.Context, k kind, name, description string) error {
	resp, err := c.rest.Do(ctx, http.MethodPut, k.path+"/"+url.PathEscape(name), nil, createRequest{Description: description})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return resp.Err("Create " + k.label + " " + name)
	}
	c.logger.Debug().Str("kind", k.label).Str("name", name).Msg("Creation requested")
	return nil
}

func (c *Client) get(ctx context.Context, k kind, name string) (*resourceStatus, error) {
	resp, err := c.rest.Do(ctx, http.MethodGet, k.path+"/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK(http.StatusOK) {
		c.logger.Debug().Str("kind", k.label).Str("name", name).Int("status", resp.StatusCode).Msg("Resource not readable")
		return nil, nil
	}
	var r resource
	if err := resp.Decode(&r); err != nil {
		return nil, err
	}
	return k.of(&r), nil
}

func (c *Client) status(ctx context.Context, k kind, name string) (Status, bool, error) {
	details, err := c.get(ctx, k, name)
	if err != nil || details == nil || details.StatusIndicator == nil {
		return "", false, err
	}
	return Status(*details.StatusIndicator), true, nil
}

func (c *Client) uid(ctx context.Context, k kind, name string) (string, bool, error) {
	details, err := c.get(ctx, k, name)
	if err != nil || details == nil {
		return "", false, err
	}
	id, ok := parseUID(details.UID)
	return id, ok, nil
}

func (c *Client) list(ctx context.Context, k kind) (map[string]string, error) {
	out := make(map[string]string)
	resp, err := c.rest.Do(ctx, http.MethodGet, k.path, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK(http.StatusOK) {
		c.logger.Warn().Str("kind", k.label).Int("status", resp.StatusCode).Msg("List failed")
		return out, nil
	}

	var items []resource
	if err := resp.Decode(&items); err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Name == nil || *items[i].Name == "" {
			continue
		}
		details := k.of(&items[i])
		if details == nil {
			continue
		}
		id, ok := parseUID(details.UID)
		if !ok {
			c.logger.Debug().Str("kind", k.label).Str("name", *items[i].Name).Msg("Skipping entry without a valid UUID")
			continue
		}
		out[*items[i].Name] = id
	}
	return out, nil
}

// parseUID accepts only the hyphenated 36-character form and returns it unchanged, since
// group names are built from the text the server reported.
func parseUID(s *string) (string, bool) {
	if s == nil || len(*s) != uuidLen {
		return "", false
	}
	id, err := uuid.Parse(*s)
	if err != nil || id == uuid.Nil {
		return "", false
	}
	return *s, true
}
