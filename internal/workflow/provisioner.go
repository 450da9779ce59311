// Package workflow composes the identity and orchestration adapters into the provisioning use
// cases: organizations with their admin, projects with their default users, user role
// assignment and the platform-admin bootstrap.
//
// Every dependent step waits for eventually consistent state through the poll package. Each
// call is an independent run; nothing is persisted between runs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/errdefs"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/identity"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/membership"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/metrics"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/orchestration"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/poll"
)

const tracerName = "github.com/blackwell-systems/emf-tenancy-control-plane/internal/workflow"

// Defaults applied by New.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 60 * time.Second
	DefaultParallelism  = 4
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrGroupNotFound        = errors.New("group not found")
	ErrNoProjects           = errors.New("no valid projects selected")
)

// Directory is the identity service as seen by the workflows.
type Directory interface {
	FindUserByUsername(ctx context.Context, username string) (*identity.User, error)
	CreateUser(ctx context.Context, nu identity.NewUser) (string, error)
	SearchUsers(ctx context.Context, query string) ([]identity.User, error)
	FindGroupByName(ctx context.Context, name string) (*identity.Group, error)
	ListUserGroups(ctx context.Context, userID string) ([]identity.Group, error)
	AddUserToGroup(ctx context.Context, userID, groupID string) error
}

// Orchestrator is the orchestration service bound to one identity.
type Orchestrator interface {
	CreateOrganization(ctx context.Context, name, description string) error
	CreateProject(ctx context.Context, name, description string) error
	OrganizationStatus(ctx context.Context, name string) (orchestration.Status, bool, error)
	ProjectStatus(ctx context.Context, name string) (orchestration.Status, bool, error)
	OrganizationUUID(ctx context.Context, name string) (string, bool, error)
	ProjectUUID(ctx context.Context, name string) (string, bool, error)
	ListOrganizations(ctx context.Context) (map[string]string, error)
	ListProjects(ctx context.Context) (map[string]string, error)
}

// OrgAdminLogin authenticates as an organization admin and returns an orchestrator acting
// with that identity. It must fail on bad credentials before returning.
type OrgAdminLogin func(ctx context.Context, username, password string) (Orchestrator, error)

// Provisioner runs the workflows with the platform admin's adapters.
type Provisioner struct {
	directory     Directory
	orchestrator  Orchestrator
	orgAdminLogin OrgAdminLogin
	relogin       func(context.Context) error

	interval    time.Duration
	timeout     time.Duration
	parallelism int

	logger  zerolog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithPolling sets the interval and timeout of every wait.
func WithPolling(interval, timeout time.Duration) Option {
	return func(p *Provisioner) {
		p.interval = interval
		p.timeout = timeout
	}
}

// WithParallelism bounds concurrent group assignments for the org admin. 1 is sequential.
func WithParallelism(n int) Option {
	return func(p *Provisioner) {
		p.parallelism = n
	}
}

// WithOrgAdminLogin sets how CreateProject obtains the org admin's orchestrator.
func WithOrgAdminLogin(fn OrgAdminLogin) Option {
	return func(p *Provisioner) {
		p.orgAdminLogin = fn
	}
}

// WithRelogin sets how the platform session is refreshed after its group memberships change.
func WithRelogin(fn func(context.Context) error) Option {
	return func(p *Provisioner) {
		p.relogin = fn
	}
}

// WithLogger sets the workflow logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = l
	}
}

// WithMetrics records polls and assignments in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provisioner) {
		p.metrics = m
	}
}

// New returns a Provisioner acting as the platform admin through directory and orchestrator.
func New(directory Directory, orchestrator Orchestrator, opts ...Option) *Provisioner {
	p := &Provisioner{
		directory:    directory,
		orchestrator: orchestrator,
		interval:     DefaultPollInterval,
		timeout:      DefaultPollTimeout,
		parallelism:  DefaultParallelism,
		logger:       zerolog.Nop(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.parallelism < 1 {
		p.parallelism = 1
	}
	p.logger = p.logger.With().Str("component", "workflow").Logger()
	return p
}

func (p *Provisioner) pollOptions(description string) poll.Options {
	return poll.Options{
		Interval:    p.interval,
		Timeout:     p.timeout,
		Description: description,
		Abort:       errdefs.IsAuthentication,
		Logger:      &p.logger,
		Metrics:     p.metrics,
	}
}

func (p *Provisioner) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// waitReady polls a status read until it reports IDLE.
func (p *Provisioner) waitReady(ctx context.Context, description string, read func(context.Context, string) (orchestration.Status, bool, error), name string) error {
	_, err := poll.Until(ctx, p.pollOptions(description),
		func(ctx context.Context) (orchestration.Status, error) {
			status, _, err := read(ctx, name)
			return status, err
		},
		orchestration.Status.Ready,
	)
	return err
}

// waitUUID polls a UUID read until a UUID is reported.
func (p *Provisioner) waitUUID(ctx context.Context, description string, read func(context.Context, string) (string, bool, error), name string) (string, error) {
	return poll.Until(ctx, p.pollOptions(description),
		func(ctx context.Context) (string, error) {
			id, _, err := read(ctx, name)
			return id, err
		},
		func(id string) bool { return id != "" },
	)
}

// waitGroup polls until the named group exists.
func (p *Provisioner) waitGroup(ctx context.Context, name string) (*identity.Group, error) {
	return poll.Until(ctx, p.pollOptions("group "+name),
		func(ctx context.Context) (*identity.Group, error) {
			return p.directory.FindGroupByName(ctx, name)
		},
		func(g *identity.Group) bool { return g != nil },
	)
}

// assignOptions selects how assign discovers and checks a group.
type assignOptions struct {
	// wait polls for the group instead of failing when it is missing.
	wait bool
	// validate runs the membership rules against the user's current groups.
	validate bool
}

// assign adds userID to the named group. Failures are carried in the Assignment.
func (p *Provisioner) assign(ctx context.Context, userID, groupName string, opts assignOptions) (a Assignment) {
	ctx, span := p.start(ctx, "workflow.assign", attribute.String("group", groupName))
	a = Assignment{Group: groupName}
	defer func() {
		p.metrics.ObserveAssignment(string(a.Status))
		endSpan(span, a.Err)
	}()

	logger := p.logger.With().Str("user_id", userID).Str("group", groupName).Logger()

	var group *identity.Group
	var err error
	if opts.wait {
		group, err = p.waitGroup(ctx, groupName)
	} else {
		group, err = p.directory.FindGroupByName(ctx, groupName)
		if err == nil && group == nil {
			err = fmt.Errorf("%w: %s", ErrGroupNotFound, groupName)
		}
	}
	if err != nil {
		return a.fail(logger, err)
	}

	if opts.validate {
		current, err := p.directory.ListUserGroups(ctx, userID)
		if err != nil {
			return a.fail(logger, err)
		}
		names := make([]string, 0, len(current))
		for _, g := range current {
			names = append(names, g.Name)
		}
		res, err := membership.Validate(userID, groupName, names)
		if err != nil {
			return a.fail(logger, err)
		}
		for _, w := range res.Warnings {
			logger.Warn().Msg(w)
		}
		a.Warnings = res.Warnings
		if res.AlreadyMember {
			a.Status = AssignmentAlreadyMember
			logger.Info().Msg("Already a member")
			return a
		}
	}

	if err := p.directory.AddUserToGroup(ctx, userID, group.ID); err != nil {
		return a.fail(logger, err)
	}
	a.Status = AssignmentAdded
	logger.Info().Msg("Added to group")
	return a
}

func (a Assignment) fail(logger zerolog.Logger, err error) Assignment {
	a.Status = AssignmentFailed
	a.Err = err
	logger.Error().Err(err).Msg("Group assignment failed")
	return a
}
