package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/workflow"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project as the organization admin",
	Long: `Create a project inside an existing organization. The project is created by
{org}-admin, so that user's password is required.

With --default-users (the default) {project}-onboard is created with the
project's Edge-Onboarding-Group, and {org}-admin is granted the project's
Edge-Manager, Edge-Operator and Host-Manager groups.`,
	Example: `  emf-tenancy project create --org acme --name edge-1
  emf-tenancy project create --org acme --name edge-2 --default-users=false`,
	RunE: runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects visible to the platform admin",
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
		projects, err := svc.orchestrator.ListProjects(ctx)
		if err != nil {
			return err
		}
		printResources("projects", projects)
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().String("name", "", "Project name")
	projectCreateCmd.Flags().String("description", "", "Project description")
	projectCreateCmd.Flags().String("org", "", "Organization the project belongs to")
	projectCreateCmd.Flags().String("org-admin-password", "", "Password of {org}-admin (prompted when empty)")
	projectCreateCmd.Flags().Bool("default-users", true, "Create {project}-onboard and extend {org}-admin to the project")
	projectCreateCmd.Flags().String("onboarding-password", "", "Password for {project}-onboard (prompted when empty)")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	description, _ := flags.GetString("description")
	org, _ := flags.GetString("org")
	orgAdminPassword, _ := flags.GetString("org-admin-password")
	defaultUsers, _ := flags.GetBool("default-users")
	onboardingPassword, _ := flags.GetString("onboarding-password")

	p := newPrompter()
	svc, err := newServices(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	if err := svc.authenticate(ctx); err != nil {
		return err
	}

	if org == "" {
		if !p.interactive {
			return fmt.Errorf("--org is required: %w", errNotInteractive)
		}
		orgs, err := svc.organizations(ctx)
		if err != nil {
			return err
		}
		if len(orgs) == 0 {
			return errors.New("no organizations found, create one first")
		}
		if org, err = p.choose("Organization", orgs); err != nil {
			return err
		}
	}
	if err := p.require(&name, "name", "Project name"); err != nil {
		return err
	}
	if !flags.Changed("default-users") {
		if defaultUsers, err = p.confirm("Create default users?", true); err != nil {
			return err
		}
	}

	admin := workflow.OrgAdminUsername(org)
	if orgAdminPassword == "" {
		if orgAdminPassword, err = p.password("Password for "+admin, "", false); err != nil {
			return err
		}
	}
	if defaultUsers && onboardingPassword == "" {
		label := "Password for " + workflow.OnboardingUsername(name)
		if onboardingPassword, err = p.password(label, svc.passwordPolicy(ctx), true); err != nil {
			return err
		}
	}

	color.Cyan("→ Creating project %s in %s...", name, org)
	res, err := svc.provisioner.CreateProject(ctx, workflow.ProjectRequest{
		Name:               name,
		Description:        description,
		Organization:       org,
		OrgAdminPassword:   orgAdminPassword,
		DefaultUsers:       defaultUsers,
		OnboardingPassword: onboardingPassword,
	})
	if err != nil {
		return fmt.Errorf("create project %s: %w", name, err)
	}
	if res.UUID != "" {
		color.Green("✓ Project %s ready (UUID: %s)", name, res.UUID)
	}

	printStep(res.OnboardingStep)
	if res.OnboardingAssignment != nil {
		printAssignment(*res.OnboardingAssignment)
	}
	printStep(res.OrgAdminStep)
	for _, a := range res.OrgAdminAssignments {
		printAssignment(a)
	}

	if err := res.Err(); err != nil {
		return fmt.Errorf("project %s created with errors: %w", name, err)
	}
	return nil
}
