package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/config"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/identity"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/metrics"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/orchestration"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/restclient"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/session"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/tracing"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/workflow"
)

// services holds everything a service command needs for one run.
type services struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	httpClient   *http.Client
	restOpts     []restclient.Option
	platform     *session.Session
	directory    *identity.Client
	orchestrator *orchestration.Client
	provisioner  *workflow.Provisioner

	shutdownTracing tracing.Shutdown
}

func newServices(cmd *cobra.Command) (*services, error) {
	applyInsecure(cmd)
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	svc := &services{
		cfg:    cfg,
		logger: newLogger(cfg.LogLevel),
	}

	svc.shutdownTracing, err = tracing.Setup(cfg.Trace, os.Stderr, cmd.Root().Version)
	if err != nil {
		return nil, err
	}
	if cfg.MetricsFile != "" {
		svc.metrics = metrics.New()
	}

	svc.httpClient = restclient.NewHTTPClient(cfg.VerifyTLS)
	svc.restOpts = []restclient.Option{
		restclient.WithHTTPClient(svc.httpClient),
		restclient.WithMetrics(svc.metrics),
	}

	svc.platform = svc.session(cfg.Identity.AdminUser, cfg.Identity.AdminPass)
	svc.directory = identity.NewClient(cfg.Identity.URL, cfg.Identity.Realm, svc.platform,
		identity.WithLogger(svc.logger),
		identity.WithREST(svc.restOpts...),
	)
	svc.orchestrator = svc.orchestratorFor(svc.platform)

	svc.provisioner = workflow.New(svc.directory, svc.orchestrator,
		workflow.WithPolling(cfg.Poll.Interval, cfg.Poll.Timeout),
		workflow.WithParallelism(cfg.Parallelism),
		workflow.WithOrgAdminLogin(svc.orgAdminLogin),
		workflow.WithRelogin(svc.platform.Login),
		workflow.WithLogger(svc.logger),
		workflow.WithMetrics(svc.metrics),
	)

	svc.logger.Debug().
		Str("keycloak", cfg.Identity.URL).
		Str("realm", cfg.Identity.Realm).
		Str("emf", cfg.OrchestrationURL).
		Bool("verify_tls", cfg.VerifyTLS).
		Msg("Runtime ready")

	return svc, nil
}

// newLogger writes human-readable logs to stderr so stdout stays with command output.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func (svc *services) session(username, password string) *session.Session {
	return session.New(
		session.Endpoint{
			TokenURL: identity.TokenURL(svc.cfg.Identity.URL, svc.cfg.Identity.Realm),
			ClientID: svc.cfg.Identity.ClientID,
			Scope:    svc.cfg.Identity.Scope,
		},
		session.Credentials{Username: username, Password: password},
		session.WithHTTPClient(svc.httpClient),
		session.WithLogger(svc.logger),
	)
}

func (svc *services) orchestratorFor(tokens restclient.TokenSource) *orchestration.Client {
	return orchestration.NewClient(svc.cfg.OrchestrationURL, tokens,
		orchestration.WithLogger(svc.logger),
		orchestration.WithREST(svc.restOpts...),
	)
}

// orgAdminLogin logs in eagerly so bad credentials fail before any project work starts.
func (svc *services) orgAdminLogin(ctx context.Context, username, password string) (workflow.Orchestrator, error) {
	s := svc.session(username, password)
	if err := s.Login(ctx); err != nil {
		return nil, err
	}
	return svc.orchestratorFor(s), nil
}

// authenticate logs in as the platform admin and makes sure it may create organizations.
// A failed bootstrap is only a warning: the admin may already hold the rights another way.
func (svc *services) authenticate(ctx context.Context) error {
	if err := svc.platform.Login(ctx); err != nil {
		return err
	}
	added, err := svc.provisioner.BootstrapPlatformAdmin(ctx, svc.platform.Username())
	switch {
	case err != nil:
		color.Yellow("⚠ Permission check failed: %v", err)
	case added:
		color.Green("✓ Added %s to the platform admin group", svc.platform.Username())
	}
	return nil
}

// passwordPolicy returns the realm password policy for display, or a placeholder.
func (svc *services) passwordPolicy(ctx context.Context) string {
	policy, err := svc.directory.PasswordPolicy(ctx)
	if err != nil {
		svc.logger.Debug().Err(err).Msg("Password policy unavailable")
		return identity.NoPasswordPolicy
	}
	return policy
}

// organizations returns the visible organization names, sorted.
func (svc *services) organizations(ctx context.Context) ([]string, error) {
	orgs, err := svc.orchestrator.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return sortedKeys(orgs), nil
}

// Close flushes spans and writes the metrics textfile.
func (svc *services) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.shutdownTracing(ctx); err != nil {
		svc.logger.Warn().Err(err).Msg("Failed to flush traces")
	}
	if svc.metrics != nil {
		if err := svc.metrics.WriteTextfile(svc.cfg.MetricsFile); err != nil {
			svc.logger.Warn().Err(err).Str("path", svc.cfg.MetricsFile).Msg("Failed to write metrics")
		}
	}
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
