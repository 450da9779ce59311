package workflow

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/identity"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/membership"
)

// ManageUser grants a role's groups to a user within one organization and, for
// project-scoped roles, a set of its projects. Groups must already exist. Assignments run one
// at a time because each validation reads the user's current groups; a failed group does not
// stop the others.
func (p *Provisioner) ManageUser(ctx context.Context, req UserRequest) (res *UserResult, err error) {
	ctx, span := p.start(ctx, "workflow.ManageUser",
		attribute.String("username", req.Username),
		attribute.String("organization", req.Organization),
		attribute.String("role", req.Role))
	defer func() { endSpan(span, err) }()

	res = &UserResult{Username: req.Username, Organization: req.Organization}
	logger := p.logger.With().Str("username", req.Username).Logger()

	tmpl, err := p.template(req)
	if err != nil {
		return res, err
	}

	if err := p.resolveUser(ctx, req, res); err != nil {
		return res, err
	}

	orgs, err := p.orchestrator.ListOrganizations(ctx)
	if err != nil {
		return res, fmt.Errorf("list organizations: %w", err)
	}
	orgID, ok := orgs[req.Organization]
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrOrganizationNotFound, req.Organization)
	}
	res.OrganizationUUID = orgID

	var projectIDs []string
	if tmpl.NeedsProjects() {
		projectIDs, err = p.selectProjects(ctx, req, res)
		if err != nil {
			return res, err
		}
	}

	for _, name := range tmpl.GroupNames(orgID, projectIDs) {
		res.Assignments = append(res.Assignments, p.assign(ctx, res.UserID, name, assignOptions{validate: true}))
	}
	logger.Info().Int("groups", len(res.Assignments)).Msg("User updated")
	return res, nil
}

func (p *Provisioner) template(req UserRequest) (membership.Template, error) {
	role, err := membership.ParseRole(req.Role)
	if err != nil {
		return membership.Template{}, err
	}
	custom := membership.CustomSelection{OrgAdmin: req.Custom.OrgAdmin}
	for _, s := range req.Custom.Suffixes {
		suffix, err := membership.ParseSuffix(s)
		if err != nil {
			return membership.Template{}, err
		}
		custom.Suffixes = append(custom.Suffixes, suffix)
	}
	return membership.TemplateFor(role, custom)
}

func (p *Provisioner) resolveUser(ctx context.Context, req UserRequest, res *UserResult) error {
	existing, err := p.directory.FindUserByUsername(ctx, req.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		res.UserID = existing.ID
		return nil
	}
	if !req.Create {
		return fmt.Errorf("%w: %s", ErrUserNotFound, req.Username)
	}
	id, err := p.directory.CreateUser(ctx, identity.NewUser{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", req.Username, err)
	}
	res.UserID = id
	res.Created = true
	return nil
}

// selectProjects resolves requested project names against the visible projects. Unknown
// names are dropped with a warning.
func (p *Provisioner) selectProjects(ctx context.Context, req UserRequest, res *UserResult) ([]string, error) {
	all, err := p.orchestrator.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	names := req.Projects
	if req.AllProjects {
		names = make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	var ids []string
	seen := make(map[string]bool)
	for _, name := range names {
		id, ok := all[name]
		if !ok {
			res.IgnoredProjects = append(res.IgnoredProjects, name)
			p.logger.Warn().Str("project", name).Msg("Unknown project ignored")
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		res.Projects = append(res.Projects, name)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoProjects
	}
	return ids, nil
}
