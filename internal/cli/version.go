package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("emf-tenancy version %s\n", cmd.Root().Version)
		fmt.Println("\nAPIs:")
		fmt.Println("  Keycloak:  admin REST API, OpenID Connect password grant")
		fmt.Println("  EMF:       /v1/orgs, /v1/projects")
		fmt.Printf("\nBuilt with %s for %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
