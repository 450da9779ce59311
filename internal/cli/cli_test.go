package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/config"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/membership"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/testutil"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/workflow"
)

const orgUUID = "11111111-1111-1111-1111-111111111111"

// run executes the command tree against the fakes. Every flag needed to avoid prompts must be
// passed in args.
func run(t *testing.T, kc *testutil.Keycloak, emf *testutil.EMF, args ...string) error {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLUSTER_FQDN", "")
	t.Setenv("KEYCLOAK_URL", kc.URL)
	t.Setenv("EMF_API_URL", emf.URL)
	t.Setenv("LOG_LEVEL", "error")

	if err := config.Init(); err != nil {
		t.Fatalf("config.Init() error = %v", err)
	}
	bindFlags()
	resetFlags(rootCmd)

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

// resetFlags restores defaults left behind by an earlier run of the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestOrgCreateCommand(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	kc.AddGroup(membership.PlatformAdminGroup)
	emf := testutil.NewEMF(t)
	emf.OnCreate = func(collection string, r *testutil.Resource) {
		r.UID = orgUUID
		kc.AddGroup(orgUUID + "_Project-Manager-Group")
	}
	metricsFile := filepath.Join(t.TempDir(), "emf.prom")

	err := run(t, kc, emf, "org", "create",
		"--name", "acme",
		"--create-admin=true",
		"--admin-password", "s3cret",
		"--metrics-file", metricsFile,
	)
	if err != nil {
		t.Fatalf("org create error = %v", err)
	}

	if got := kc.GroupsOf(kc.UserID("acme-admin")); !slices.Equal(got, []string{orgUUID + "_Project-Manager-Group"}) {
		t.Errorf("acme-admin groups = %v", got)
	}
	if got := kc.GroupsOf(kc.UserID("admin")); !slices.Contains(got, membership.PlatformAdminGroup) {
		t.Errorf("platform admin groups = %v, want the bootstrap group", got)
	}
	if n := kc.Logins("admin"); n != 2 {
		t.Errorf("admin logins = %d, want login plus refresh", n)
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), "emf_tenancy_group_assignments_total") {
		t.Errorf("metrics file missing assignments:\n%s", data)
	}
}

func TestUserManageFromManifest(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	kc.AddGroup(membership.PlatformAdminGroup)
	kc.AddGroup(orgUUID + "_Project-Manager-Group")
	bob := kc.AddUser("bob", "pw")
	emf := testutil.NewEMF(t)
	emf.Put("orgs", &testutil.Resource{Name: "acme", UID: orgUUID, Statuses: []string{"STATUS_INDICATION_IDLE"}})

	path := filepath.Join(t.TempDir(), "grants.yaml")
	manifest := "users:\n  - username: bob\n    organization: acme\n    role: project-admin\n"
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	if err := run(t, kc, emf, "user", "manage", "--file", path); err != nil {
		t.Fatalf("user manage error = %v", err)
	}
	if got := kc.GroupsOf(bob); !slices.Equal(got, []string{orgUUID + "_Project-Manager-Group"}) {
		t.Errorf("bob groups = %v", got)
	}
}

func TestUserManageRejectsInvalidManifest(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	emf := testutil.NewEMF(t)

	path := filepath.Join(t.TempDir(), "grants.yaml")
	if err := os.WriteFile(path, []byte("users:\n  - username: bob\n    role: owner\n"), 0644); err != nil {
		t.Fatal(err)
	}

	err := run(t, kc, emf, "user", "manage", "--file", path)
	if err == nil || !strings.Contains(err.Error(), "manifest has") {
		t.Fatalf("user manage error = %v, want manifest errors", err)
	}
	if n := kc.Logins("admin"); n != 0 {
		t.Errorf("admin logins = %d, want none before the manifest is valid", n)
	}
}

func TestUserManageUnknownOrganization(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	kc.AddUser("bob", "pw")
	emf := testutil.NewEMF(t)

	err := run(t, kc, emf, "user", "manage",
		"--username", "bob",
		"--create=false",
		"--org", "nowhere",
		"--role", "project-admin",
	)
	if !errors.Is(err, workflow.ErrOrganizationNotFound) {
		t.Fatalf("user manage error = %v, want organization not found", err)
	}
}

func TestStatusCommand(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	emf := testutil.NewEMF(t)

	if err := run(t, kc, emf, "status"); err != nil {
		t.Errorf("status error = %v", err)
	}
}

func TestNeedsProjects(t *testing.T) {
	tests := []struct {
		name   string
		role   membership.Role
		custom workflow.CustomSuffixes
		want   bool
	}{
		{name: "project admin", role: membership.RoleProjectAdmin, want: false},
		{name: "project user", role: membership.RoleProjectUser, want: true},
		{name: "custom org admin only", role: membership.RoleCustom, custom: workflow.CustomSuffixes{OrgAdmin: true}, want: false},
		{name: "custom with suffix", role: membership.RoleCustom, custom: workflow.CustomSuffixes{Suffixes: []string{"edge-operator"}}, want: true},
		{name: "custom with unknown suffix", role: membership.RoleCustom, custom: workflow.CustomSuffixes{Suffixes: []string{"root"}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsProjects(tt.role, tt.custom); got != tt.want {
				t.Errorf("needsProjects() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserManageHelpProjectAdminScope(t *testing.T) {
	long := userManageCmd.Long
	for _, want := range []string{"--projects or --all-projects", "project-admin, and custom with only --org-admin", "ignore any project selection"} {
		if !strings.Contains(long, want) {
			t.Errorf("user manage help is missing %q", want)
		}
	}
	if needsProjects(membership.RoleProjectAdmin, workflow.CustomSuffixes{}) {
		t.Error("project-admin should not need a project selection")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList([]string{" edge-1, edge-2 ", "", "edge-3,,"})
	if !slices.Equal(got, []string{"edge-1", "edge-2", "edge-3"}) {
		t.Errorf("splitList() = %v", got)
	}
}
