package membership

import (
	"errors"
	"fmt"
	"strings"
)

// Role names a predefined bundle of group suffixes.
type Role string

const (
	RoleProjectAdmin Role = "project-admin"
	RoleProjectUser  Role = "project-user"
	RoleCustom       Role = "custom"
)

// Roles lists the selectable roles.
var Roles = []Role{RoleProjectAdmin, RoleProjectUser, RoleCustom}

// ErrEmptySelection is returned for a custom role that selects no group.
var ErrEmptySelection = errors.New("custom role selects no groups")

// ParseRole accepts "project-admin", "Project Admin", "project_user" and similar spellings.
func ParseRole(s string) (Role, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	for _, r := range Roles {
		if string(r) == norm {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q (want one of project-admin, project-user, custom)", s)
}

// CustomSelection is the ad hoc choice behind RoleCustom.
type CustomSelection struct {
	// Suffixes applied to every selected project. ProjectManager is not allowed here.
	Suffixes []Suffix
	// OrgAdmin adds the organization-scope Project-Manager-Group.
	OrgAdmin bool
}

// Template is a role expanded into suffixes per scope.
type Template struct {
	Role            Role
	ProjectSuffixes []Suffix
	OrgSuffixes     []Suffix
}

// customSuffixes are the project-scope suffixes a custom role may pick, in application order.
var customSuffixes = []Suffix{EdgeManager, EdgeOperator, HostManager, EdgeOnboarding}

// TemplateFor returns the template of role. custom is only read for RoleCustom.
func TemplateFor(role Role, custom CustomSelection) (Template, error) {
	switch role {
	case RoleProjectAdmin:
		return Template{Role: role, OrgSuffixes: []Suffix{ProjectManager}}, nil
	case RoleProjectUser:
		return Template{
			Role:            role,
			ProjectSuffixes: []Suffix{EdgeManager, EdgeOnboarding, EdgeOperator, HostManager},
		}, nil
	case RoleCustom:
		t := Template{Role: role}
		for _, allowed := range customSuffixes {
			for _, s := range custom.Suffixes {
				if s == allowed {
					t.ProjectSuffixes = append(t.ProjectSuffixes, s)
					break
				}
			}
		}
		for _, s := range custom.Suffixes {
			if s == ProjectManager {
				return Template{}, fmt.Errorf("%s is organization-scoped; select it with the org-admin option", ProjectManager)
			}
		}
		if custom.OrgAdmin {
			t.OrgSuffixes = []Suffix{ProjectManager}
		}
		if len(t.ProjectSuffixes) == 0 && len(t.OrgSuffixes) == 0 {
			return Template{}, ErrEmptySelection
		}
		return t, nil
	default:
		return Template{}, fmt.Errorf("unknown role %q", role)
	}
}

// NeedsProjects reports whether the template has project-scope groups.
func (t Template) NeedsProjects() bool {
	return len(t.ProjectSuffixes) > 0
}

// GroupNames expands the template: project groups first, in project then suffix order, then
// organization groups.
func (t Template) GroupNames(org string, projects []string) []string {
	names := make([]string, 0, len(projects)*len(t.ProjectSuffixes)+len(t.OrgSuffixes))
	for _, p := range projects {
		for _, s := range t.ProjectSuffixes {
			names = append(names, GroupName(p, s))
		}
	}
	for _, s := range t.OrgSuffixes {
		names = append(names, GroupName(org, s))
	}
	return names
}
