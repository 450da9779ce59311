package cli

import (
	"errors"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/config"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/health"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/restclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of the identity and orchestration services",
	Long:  `Check that Keycloak serves the configured realm and that the EMF API answers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyInsecure(cmd)
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		report := health.Status(cmd.Context(), cfg, restclient.NewHTTPClient(cfg.VerifyTLS))

		// Print status
		color.Cyan("Service          Status        Latency   URL")
		color.Cyan("──────────────────────────────────────────────────────────────")

		printServiceStatus(report.Identity)
		printServiceStatus(report.Orchestration)

		if !report.Healthy() {
			return errors.New("one or more services are not healthy")
		}
		return nil
	},
}

func printServiceStatus(p health.Probe) {
	var statusText string
	switch p.Status {
	case health.ServiceUp:
		statusText = color.GreenString("✓ UP      ")
	case health.ServiceDown:
		statusText = color.RedString("✗ DOWN    ")
	case health.ServiceDegraded:
		statusText = color.YellowString("⚠ DEGRADED")
	default:
		statusText = color.RedString("✗ UNKNOWN ")
	}

	color.New().Printf("%-16s %s    %-9s %s\n", p.Name, statusText, p.Latency.Round(time.Millisecond), p.URL)
	if p.Err != nil {
		color.New(color.Faint).Printf("                 %v\n", p.Err)
	}
}
