package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/identity"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/membership"
)

// OrgAdminUsername is the admin user created for an organization.
func OrgAdminUsername(org string) string {
	return org + "-admin"
}

// CreateOrganization creates an organization, waits for it to be provisioned and, when asked,
// creates {org}-admin and makes it the organization's Project-Manager. Any failure ends the
// run; the result holds what completed before it.
func (p *Provisioner) CreateOrganization(ctx context.Context, req OrganizationRequest) (res *OrganizationResult, err error) {
	ctx, span := p.start(ctx, "workflow.CreateOrganization", attribute.String("organization", req.Name))
	defer func() { endSpan(span, err) }()

	res = &OrganizationResult{Name: req.Name}
	logger := p.logger.With().Str("organization", req.Name).Logger()

	description := req.Description
	if description == "" {
		description = "Description for " + req.Name
	}
	if err := p.orchestrator.CreateOrganization(ctx, req.Name, description); err != nil {
		return res, err
	}
	logger.Info().Msg("Organization requested")

	if err := p.waitReady(ctx, "organization "+req.Name+" provisioning", p.orchestrator.OrganizationStatus, req.Name); err != nil {
		return res, err
	}
	id, err := p.waitUUID(ctx, "organization "+req.Name+" UUID", p.orchestrator.OrganizationUUID, req.Name)
	if err != nil {
		return res, err
	}
	res.UUID = id
	span.SetAttributes(attribute.String("organization.uuid", id))
	logger.Info().Str("uuid", id).Msg("Organization ready")

	if !req.CreateAdmin {
		return res, nil
	}

	admin := OrgAdminUsername(req.Name)
	userID, err := p.directory.CreateUser(ctx, identity.NewUser{Username: admin, Password: req.AdminPassword})
	if err != nil {
		return res, fmt.Errorf("create admin %s: %w", admin, err)
	}
	res.AdminUsername = admin
	res.AdminUserID = userID

	a := p.assign(ctx, userID, membership.GroupName(id, membership.ProjectManager), assignOptions{wait: true, validate: true})
	res.AdminGroup = &a
	if a.Err != nil {
		return res, fmt.Errorf("assign admin group: %w", a.Err)
	}
	logger.Info().Str("admin", admin).Msg("Organization admin ready")
	return res, nil
}
