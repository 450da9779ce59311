// Package cli implements the emf-tenancy command tree.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "emf-tenancy",
	Short: "Provision EMF organizations, projects and users",
	Long: `emf-tenancy provisions multi-tenant Edge Manageability Framework clusters.

It creates organizations and projects through the EMF API, waits for them to
become ready, and grants Keycloak users the role groups that EMF derives from
each organization and project UUID.

Configuration is read from flags, environment variables (CLUSTER_FQDN,
KEYCLOAK_*, EMF_API_URL, ...), $HOME/.emf-tenancy/config.yaml and .env.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute(version string) error {
	rootCmd.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("✗ %v", err)
		return err
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.Bool("trace", false, "Write OpenTelemetry spans to stderr")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	flags.Int("parallelism", 4, "Concurrent group assignments for the org admin")
	flags.Bool("insecure", false, "Skip TLS certificate verification")

	bindFlags()

	rootCmd.AddCommand(orgCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func bindFlags() {
	flags := rootCmd.PersistentFlags()
	viper.BindPFlag("log-level", flags.Lookup("log-level"))
	viper.BindPFlag("trace", flags.Lookup("trace"))
	viper.BindPFlag("metrics-file", flags.Lookup("metrics-file"))
	viper.BindPFlag("parallelism", flags.Lookup("parallelism"))
}

// applyInsecure turns --insecure into verify-ssl=false.
func applyInsecure(cmd *cobra.Command) {
	if insecure, _ := cmd.Flags().GetBool("insecure"); insecure {
		viper.Set("verify-ssl", false)
	}
}
