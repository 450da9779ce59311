package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/workflow"
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
}

var orgCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an organization and its admin",
	Long: `Create an organization, wait until it is ready, and optionally create
{org}-admin as a member of the organization's Project-Manager-Group.`,
	Example: `  emf-tenancy org create --name acme
  emf-tenancy org create --name acme --create-admin=false`,
	RunE: runOrgCreate,
}

var orgListCmd = &cobra.Command{
	Use:   "list",
	Short: "List organizations",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newServices(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx := cmd.Context()
		if err := svc.platform.Login(ctx); err != nil {
			return err
		}
		orgs, err := svc.orchestrator.ListOrganizations(ctx)
		if err != nil {
			return err
		}
		printResources("organizations", orgs)
		return nil
	},
}

func init() {
	orgCreateCmd.Flags().String("name", "", "Organization name")
	orgCreateCmd.Flags().String("description", "", "Organization description")
	orgCreateCmd.Flags().Bool("create-admin", true, "Create {org}-admin with the Project-Manager-Group")
	orgCreateCmd.Flags().String("admin-password", "", "Password for {org}-admin (prompted when empty)")

	orgCmd.AddCommand(orgCreateCmd)
	orgCmd.AddCommand(orgListCmd)
}

func runOrgCreate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	description, _ := flags.GetString("description")
	createAdmin, _ := flags.GetBool("create-admin")
	adminPassword, _ := flags.GetString("admin-password")

	p := newPrompter()
	if err := p.require(&name, "name", "Organization name"); err != nil {
		return err
	}
	if !flags.Changed("create-admin") {
		var err error
		if createAdmin, err = p.confirm("Create default org admin?", true); err != nil {
			return err
		}
	}

	svc, err := newServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	if err := svc.authenticate(ctx); err != nil {
		return err
	}

	admin := workflow.OrgAdminUsername(name)
	if createAdmin && adminPassword == "" {
		adminPassword, err = p.password("Password for "+admin, svc.passwordPolicy(ctx), true)
		if err != nil {
			return err
		}
	}

	color.Cyan("→ Creating organization %s...", name)
	res, err := svc.provisioner.CreateOrganization(ctx, workflow.OrganizationRequest{
		Name:          name,
		Description:   description,
		CreateAdmin:   createAdmin,
		AdminPassword: adminPassword,
	})
	if res.UUID != "" {
		color.Green("✓ Organization %s ready (UUID: %s)", name, res.UUID)
	}
	if res.AdminGroup != nil {
		printAssignment(*res.AdminGroup)
	}
	if err != nil {
		return fmt.Errorf("create organization %s: %w", name, err)
	}
	if res.AdminUsername != "" {
		color.Green("✓ %s is admin of %s", res.AdminUsername, name)
	}
	return nil
}
