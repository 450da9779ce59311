// Package membership knows the group naming convention, the membership rules enforced before
// every add, and the role templates that expand into group names.
//
// Group names have the form {ResourceUUID}_{Suffix}, where the UUID is the 36-character text
// the orchestration service reported for an organization or project, case preserved.
package membership

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/errdefs"
)

// Suffix is the role part of a group name.
type Suffix string

const (
	ProjectManager Suffix = "Project-Manager-Group"
	EdgeManager    Suffix = "Edge-Manager-Group"
	EdgeOperator   Suffix = "Edge-Operator-Group"
	HostManager    Suffix = "Host-Manager-Group"
	EdgeOnboarding Suffix = "Edge-Onboarding-Group"
)

// Suffixes lists every known suffix.
var Suffixes = []Suffix{ProjectManager, EdgeManager, EdgeOperator, HostManager, EdgeOnboarding}

// PlatformAdminGroup is the realm group that lets a user create organizations.
const PlatformAdminGroup = "org-admin-group"

const uuidLen = 36

// ParseSuffix accepts a suffix in its full form ("Edge-Manager-Group") or short form
// ("edge-manager"), case-insensitively.
func ParseSuffix(s string) (Suffix, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimSuffix(norm, "-group")
	for _, suffix := range Suffixes {
		if strings.TrimSuffix(strings.ToLower(string(suffix)), "-group") == norm {
			return suffix, nil
		}
	}
	return "", fmt.Errorf("unknown group suffix %q", s)
}

// GroupName builds {resource}_{suffix}.
func GroupName(resource string, suffix Suffix) string {
	return resource + "_" + string(suffix)
}

// ParseGroupName splits a conventional group name. ok is false unless the prefix is exactly
// 36 characters followed by an underscore.
func ParseGroupName(name string) (prefix string, suffix Suffix, ok bool) {
	if len(name) <= uuidLen || name[uuidLen] != '_' {
		return "", "", false
	}
	return name[:uuidLen], Suffix(name[uuidLen+1:]), true
}

// IsOnboarding reports whether name is an onboarding-role group.
func IsOnboarding(name string) bool {
	return strings.HasSuffix(name, string(EdgeOnboarding))
}

// Result is the outcome of a successful validation.
type Result struct {
	// AlreadyMember is set when the proposed group is already held; the add can be skipped.
	AlreadyMember bool
	// Warnings are advisory findings that do not block the add.
	Warnings []string
}

// Validate checks whether userID, currently in the groups named by current, may join
// proposed. A second onboarding group is a *errdefs.ConstraintError. Conventional groups under
// a different UUID prefix only produce a warning: organization and project UUIDs cannot be
// told apart by name, so holding an org group and a project group of that org is legitimate.
func Validate(userID, proposed string, current []string) (Result, error) {
	var res Result
	for _, name := range current {
		if name == proposed {
			res.AlreadyMember = true
		}
	}

	if IsOnboarding(proposed) {
		for _, name := range current {
			if IsOnboarding(name) && name != proposed {
				return res, &errdefs.ConstraintError{
					Detail: fmt.Sprintf("user %s is already in onboarding group %s", userID, name),
				}
			}
		}
	}

	prefix, _, ok := ParseGroupName(proposed)
	if !ok {
		return res, nil
	}
	seen := make(map[string]bool)
	for _, name := range current {
		other, _, ok := ParseGroupName(name)
		if !ok || other == prefix || seen[other] {
			continue
		}
		seen[other] = true
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"user %s already belongs to resource %s; adding to %s", userID, other, prefix))
	}
	return res, nil
}
