package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/membership"
)

// BootstrapPlatformAdmin makes sure the platform admin belongs to the platform admin group,
// without which organizations cannot be created. When the membership is added the session is
// refreshed so the token carries it. added reports whether anything changed.
func (p *Provisioner) BootstrapPlatformAdmin(ctx context.Context, username string) (added bool, err error) {
	ctx, span := p.start(ctx, "workflow.BootstrapPlatformAdmin", attribute.String("username", username))
	defer func() { endSpan(span, err) }()

	user, err := p.directory.FindUserByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	group, err := p.directory.FindGroupByName(ctx, membership.PlatformAdminGroup)
	if err != nil {
		return false, err
	}
	if group == nil {
		return false, fmt.Errorf("%w: %s", ErrGroupNotFound, membership.PlatformAdminGroup)
	}

	current, err := p.directory.ListUserGroups(ctx, user.ID)
	if err != nil {
		return false, err
	}
	for _, g := range current {
		if g.ID == group.ID || g.Name == membership.PlatformAdminGroup {
			return false, nil
		}
	}

	if err := p.directory.AddUserToGroup(ctx, user.ID, group.ID); err != nil {
		return false, err
	}
	p.logger.Info().Str("username", username).Str("group", membership.PlatformAdminGroup).Msg("Platform admin group added")

	if p.relogin != nil {
		if err := p.relogin(ctx); err != nil {
			return true, fmt.Errorf("refresh session: %w", err)
		}
	}
	return true, nil
}
