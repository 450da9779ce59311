package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/iter"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/identity"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/membership"
)

// orgAdminProjectSuffixes are granted to the org admin on every new project: everything but
// onboarding.
var orgAdminProjectSuffixes = []membership.Suffix{
	membership.EdgeManager,
	membership.EdgeOperator,
	membership.HostManager,
}

// OnboardingUsername is the onboarding user created for a project.
func OnboardingUsername(project string) string {
	return project + "-onboard"
}

// CreateProject creates a project as the organization's admin and waits for it. With
// DefaultUsers it then creates {project}-onboard in the project's onboarding group and grants
// {org}-admin the project's other role groups. Those two steps are independent: a failure in
// one is recorded in the result and the other still runs.
func (p *Provisioner) CreateProject(ctx context.Context, req ProjectRequest) (res *ProjectResult, err error) {
	ctx, span := p.start(ctx, "workflow.CreateProject",
		attribute.String("project", req.Name),
		attribute.String("organization", req.Organization))
	defer func() { endSpan(span, err) }()

	res = &ProjectResult{Name: req.Name, Organization: req.Organization}
	logger := p.logger.With().Str("project", req.Name).Str("organization", req.Organization).Logger()

	if p.orgAdminLogin == nil {
		return res, errors.New("no org admin login configured")
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

	admin := OrgAdminUsername(req.Organization)
	orgOrch, err := p.orgAdminLogin(ctx, admin, req.OrgAdminPassword)
	if err != nil {
		return res, fmt.Errorf("log in as %s: %w", admin, err)
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Project %s in %s", req.Name, req.Organization)
	}
	if err := orgOrch.CreateProject(ctx, req.Name, description); err != nil {
		return res, err
	}
	logger.Info().Msg("Project requested")

	if err := p.waitReady(ctx, "project "+req.Name+" provisioning", orgOrch.ProjectStatus, req.Name); err != nil {
		return res, err
	}
	projID, err := p.waitUUID(ctx, "project "+req.Name+" UUID", orgOrch.ProjectUUID, req.Name)
	if err != nil {
		return res, err
	}
	res.UUID = projID
	span.SetAttributes(attribute.String("project.uuid", projID))
	logger.Info().Str("uuid", projID).Msg("Project ready")

	if !req.DefaultUsers {
		return res, nil
	}

	p.createOnboardingUser(ctx, req, res)
	p.extendOrgAdmin(ctx, admin, res)
	return res, nil
}

func (p *Provisioner) createOnboardingUser(ctx context.Context, req ProjectRequest, res *ProjectResult) {
	username := OnboardingUsername(req.Name)
	res.OnboardingUser = username
	step := &Step{Name: "onboarding user " + username}
	res.OnboardingStep = step

	userID, err := p.directory.CreateUser(ctx, identity.NewUser{Username: username, Password: req.OnboardingPassword})
	if err != nil {
		step.Status = StepFailed
		step.Err = err
		p.logger.Error().Err(err).Str("username", username).Msg("Onboarding user not created")
		return
	}
	res.OnboardingUserID = userID

	a := p.assign(ctx, userID, membership.GroupName(res.UUID, membership.EdgeOnboarding), assignOptions{wait: true, validate: true})
	res.OnboardingAssignment = &a
	if a.OK() {
		step.Status = StepDone
	} else {
		step.Status = StepFailed
		step.Detail = "onboarding group not assigned"
	}
}

// extendOrgAdmin grants the org admin the project's non-onboarding groups. The groups appear
// independently, so each is awaited and assigned on its own.
func (p *Provisioner) extendOrgAdmin(ctx context.Context, admin string, res *ProjectResult) {
	res.OrgAdmin = admin
	step := &Step{Name: "org admin " + admin}
	res.OrgAdminStep = step

	userID, err := p.findExact(ctx, admin)
	if err != nil {
		step.Status = StepFailed
		step.Err = err
		return
	}
	if userID == "" {
		step.Status = StepSkipped
		step.Detail = fmt.Sprintf("%s not found", admin)
		p.logger.Warn().Str("username", admin).Msg("Org admin not found, skipping update")
		return
	}

	mapper := iter.Mapper[membership.Suffix, Assignment]{MaxGoroutines: p.parallelism}
	res.OrgAdminAssignments = mapper.Map(orgAdminProjectSuffixes, func(s *membership.Suffix) Assignment {
		// The admin legitimately holds org and project groups under different UUIDs, so the
		// membership rules are not applied here.
		return p.assign(ctx, userID, membership.GroupName(res.UUID, *s), assignOptions{wait: true})
	})

	step.Status = StepDone
	for _, a := range res.OrgAdminAssignments {
		if !a.OK() {
			step.Status = StepFailed
			step.Detail = "some project groups were not assigned"
		}
	}
}

// findExact locates a user through the fuzzy search and keeps the exact match.
func (p *Provisioner) findExact(ctx context.Context, username string) (string, error) {
	users, err := p.directory.SearchUsers(ctx, username)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return u.ID, nil
		}
	}
	return "", nil
}
