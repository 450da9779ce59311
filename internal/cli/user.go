package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/manifest"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/membership"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/workflow"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user role assignments",
}

var userManageCmd = &cobra.Command{
	Use:   "manage",
	Short: "Grant a user a role in an organization and its projects",
	Long: `Grant a user the groups of a role, creating the user first if asked.

Roles:
  project-admin   Project-Manager-Group of the organization
  project-user    Edge-Manager, Edge-Onboarding, Edge-Operator and Host-Manager
                  groups of every selected project
  custom          the project groups chosen with --suffix, plus the
                  organization's Project-Manager-Group with --org-admin

Projects (--projects or --all-projects) are only needed when the role grants
project groups. project-admin, and custom with only --org-admin, are
organization-wide and ignore any project selection.

Grants can also be read from a YAML or JSON manifest with --file. The grant
given on flags can be written to a manifest with --save (passwords are never
saved).`,
	Example: `  emf-tenancy user manage --username bob --org acme --role project-admin
  emf-tenancy user manage --username carol --create --org acme --role project-user --projects edge-1,edge-2
  emf-tenancy user manage --username dan --org acme --role custom --suffix edge-operator --all-projects
  emf-tenancy user manage --file grants.yaml`,
	RunE: runUserManage,
}

func init() {
	flags := userManageCmd.Flags()
	flags.String("username", "", "User to manage")
	flags.Bool("create", false, "Create the user when it does not exist")
	flags.String("password", "", "Password for a created user (prompted when empty)")
	flags.String("email", "", "Email for a created user (default {username}@{realm})")
	flags.String("org", "", "Organization")
	flags.StringSlice("projects", nil, "Projects to grant (comma-separated)")
	flags.Bool("all-projects", false, "Grant every project visible to the platform admin")
	flags.String("role", "", "Role: project-admin, project-user or custom")
	flags.StringSlice("suffix", nil, "Group suffixes for the custom role (e.g. edge-manager,host-manager)")
	flags.Bool("org-admin", false, "Custom role: add the organization's Project-Manager-Group")
	flags.String("file", "", "Apply the grants of a YAML or JSON manifest")
	flags.String("save", "", "Write the grant to a manifest file")

	userCmd.AddCommand(userManageCmd)
}

func runUserManage(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if file, _ := flags.GetString("file"); file != "" {
		return applyManifest(cmd, file)
	}

	req := workflow.UserRequest{}
	req.Username, _ = flags.GetString("username")
	req.Create, _ = flags.GetBool("create")
	req.Password, _ = flags.GetString("password")
	req.Email, _ = flags.GetString("email")
	req.Organization, _ = flags.GetString("org")
	req.Projects, _ = flags.GetStringSlice("projects")
	req.AllProjects, _ = flags.GetBool("all-projects")
	req.Role, _ = flags.GetString("role")
	req.Custom.Suffixes, _ = flags.GetStringSlice("suffix")
	req.Custom.OrgAdmin, _ = flags.GetBool("org-admin")

	p := newPrompter()
	if err := p.require(&req.Username, "username", "Username"); err != nil {
		return err
	}
	if !flags.Changed("create") && p.interactive {
		action, err := p.choose("Action", []string{"Update existing user", "Create new user"})
		if err != nil {
			return err
		}
		req.Create = action == "Create new user"
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

	if err := promptGrant(ctx, svc, p, &req); err != nil {
		return err
	}

	if save, _ := flags.GetString("save"); save != "" {
		m := &manifest.Manifest{Users: []manifest.Grant{manifest.FromRequest(req)}}
		if result := manifest.Validate(m); !result.Valid {
			return invalidManifest(result)
		}
		if err := manifest.Save(m, save); err != nil {
			return err
		}
		color.Green("✓ Grant saved to %s", save)
	}

	return manageUser(ctx, svc, req)
}

// promptGrant completes req interactively. Values given on flags are never asked again.
func promptGrant(ctx context.Context, svc *services, p *prompter, req *workflow.UserRequest) error {
	if req.Create && req.Password == "" {
		pw, err := p.password("Password for "+req.Username, svc.passwordPolicy(ctx), true)
		if err != nil {
			return err
		}
		req.Password = pw
	}

	if req.Organization == "" {
		orgs, err := svc.organizations(ctx)
		if err != nil {
			return err
		}
		if req.Organization, err = p.choose("Organization", orgs); err != nil {
			return err
		}
	}

	if req.Role == "" {
		roles := make([]string, 0, len(membership.Roles))
		for _, r := range membership.Roles {
			roles = append(roles, string(r))
		}
		var err error
		if req.Role, err = p.choose("Role", roles); err != nil {
			return err
		}
	}

	role, err := membership.ParseRole(req.Role)
	if err != nil {
		return err
	}
	if role == membership.RoleCustom && len(req.Custom.Suffixes) == 0 && !req.Custom.OrgAdmin && p.interactive {
		for _, s := range []membership.Suffix{membership.EdgeManager, membership.EdgeOperator, membership.HostManager, membership.EdgeOnboarding} {
			ok, err := p.confirm(fmt.Sprintf("Add %s?", s), false)
			if err != nil {
				return err
			}
			if ok {
				req.Custom.Suffixes = append(req.Custom.Suffixes, string(s))
			}
		}
		if req.Custom.OrgAdmin, err = p.confirm("Make org admin (Project-Manager-Group)?", false); err != nil {
			return err
		}
	}

	if len(req.Projects) > 0 || req.AllProjects || !needsProjects(role, req.Custom) || !p.interactive {
		return nil
	}

	projects, err := svc.orchestrator.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	if len(projects) == 0 {
		return workflow.ErrNoProjects
	}
	color.Cyan("Projects:")
	for _, name := range sortedKeys(projects) {
		fmt.Printf("  %s\n", name)
	}
	answer, err := p.line("Projects (comma-separated, or 'all'): ")
	if err != nil {
		return err
	}
	if strings.EqualFold(answer, "all") {
		req.AllProjects = true
	} else {
		req.Projects = splitList([]string{answer})
	}
	return nil
}

// needsProjects reports whether the role grants project-scope groups. Selection errors are
// left for the workflow to report.
func needsProjects(role membership.Role, custom workflow.CustomSuffixes) bool {
	sel := membership.CustomSelection{OrgAdmin: custom.OrgAdmin}
	for _, s := range custom.Suffixes {
		suffix, err := membership.ParseSuffix(s)
		if err != nil {
			return false
		}
		sel.Suffixes = append(sel.Suffixes, suffix)
	}
	tmpl, err := membership.TemplateFor(role, sel)
	if err != nil {
		return false
	}
	return tmpl.NeedsProjects()
}

func applyManifest(cmd *cobra.Command, path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	if result := manifest.Validate(m); !result.Valid {
		return invalidManifest(result)
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

	p := newPrompter()
	var errs []error
	for _, g := range m.Users {
		req := g.Request()
		if req.Create && req.Password == "" {
			if req.Password, err = p.password("Password for "+req.Username, svc.passwordPolicy(ctx), true); err != nil {
				return err
			}
		}
		if err := manageUser(ctx, svc, req); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", req.Username, err))
		}
	}
	return errors.Join(errs...)
}

func invalidManifest(result *manifest.ValidationResult) error {
	color.Red("✗ Manifest is invalid:")
	for _, e := range result.Errors {
		color.Red("  - %s", e)
	}
	return fmt.Errorf("manifest has %d error(s)", len(result.Errors))
}

func manageUser(ctx context.Context, svc *services, req workflow.UserRequest) error {
	color.Cyan("→ Updating %s in %s (%s)...", req.Username, req.Organization, req.Role)
	res, err := svc.provisioner.ManageUser(ctx, req)
	if res.Created {
		color.Green("✓ User %s created", req.Username)
	}
	for _, name := range res.IgnoredProjects {
		color.Yellow("⚠ Project %s not found. Skipping.", name)
	}
	if err != nil {
		return err
	}
	for _, a := range res.Assignments {
		printAssignment(a)
	}
	if err := res.Err(); err != nil {
		return err
	}
	color.Green("✓ %s updated", req.Username)
	return nil
}
