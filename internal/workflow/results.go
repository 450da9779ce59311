package workflow

import (
	"errors"
	"fmt"
)

// AssignmentStatus is the outcome of one group assignment.
type AssignmentStatus string

const (
	AssignmentAdded         AssignmentStatus = "added"
	AssignmentAlreadyMember AssignmentStatus = "already_member"
	AssignmentFailed        AssignmentStatus = "failed"
)

// Assignment reports one user-to-group assignment.
type Assignment struct {
	Group    string
	Status   AssignmentStatus
	Warnings []string
	Err      error
}

// OK reports whether the user ends up in the group.
func (a Assignment) OK() bool {
	return a.Status == AssignmentAdded || a.Status == AssignmentAlreadyMember
}

// StepStatus is the outcome of an optional workflow step.
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// Step reports an optional step that does not abort its workflow.
type Step struct {
	Name   string
	Status StepStatus
	Detail string
	Err    error
}

// OrganizationRequest asks for an organization and, optionally, its admin.
type OrganizationRequest struct {
	Name        string
	Description string

	CreateAdmin   bool
	AdminPassword string
}

// OrganizationResult holds what CreateOrganization completed.
type OrganizationResult struct {
	Name string
	UUID string

	// AdminUsername and AdminUserID are set once the admin user exists.
	AdminUsername string
	AdminUserID   string
	// AdminGroup is the admin's Project-Manager group assignment.
	AdminGroup *Assignment
}

// ProjectRequest asks for a project in an existing organization.
type ProjectRequest struct {
	Name         string
	Description  string
	Organization string

	// OrgAdminPassword authenticates {org}-admin, who creates the project.
	OrgAdminPassword string

	// DefaultUsers creates {project}-onboard and extends {org}-admin to the project.
	DefaultUsers       bool
	OnboardingPassword string
}

// ProjectResult holds what CreateProject completed.
type ProjectResult struct {
	Name             string
	UUID             string
	Organization     string
	OrganizationUUID string

	OnboardingUser       string
	OnboardingUserID     string
	OnboardingStep       *Step
	OnboardingAssignment *Assignment

	OrgAdmin            string
	OrgAdminStep        *Step
	OrgAdminAssignments []Assignment
}

// Err joins the failures of the optional steps, or returns nil.
func (r *ProjectResult) Err() error {
	var errs []error
	if r.OnboardingStep != nil && r.OnboardingStep.Err != nil {
		errs = append(errs, fmt.Errorf("onboarding user: %w", r.OnboardingStep.Err))
	}
	if r.OnboardingAssignment != nil && r.OnboardingAssignment.Err != nil {
		errs = append(errs, fmt.Errorf("onboarding group: %w", r.OnboardingAssignment.Err))
	}
	if r.OrgAdminStep != nil && r.OrgAdminStep.Err != nil {
		errs = append(errs, fmt.Errorf("org admin: %w", r.OrgAdminStep.Err))
	}
	errs = append(errs, assignmentErrors(r.OrgAdminAssignments)...)
	return errors.Join(errs...)
}

// UserRequest asks for role groups to be granted to a user.
type UserRequest struct {
	Username string
	// Create makes the user when missing; Password and Email are only used then.
	Create   bool
	Password string
	Email    string

	Organization string
	Projects     []string
	AllProjects  bool

	Role   string
	Custom CustomSuffixes
}

// CustomSuffixes is the custom-role selection in its textual form.
type CustomSuffixes struct {
	Suffixes []string
	OrgAdmin bool
}

// UserResult holds what ManageUser completed.
type UserResult struct {
	Username         string
	UserID           string
	Created          bool
	Organization     string
	OrganizationUUID string
	Projects         []string
	IgnoredProjects  []string
	Assignments      []Assignment
}

// Err joins the failed assignments, or returns nil.
func (r *UserResult) Err() error {
	return errors.Join(assignmentErrors(r.Assignments)...)
}

func assignmentErrors(as []Assignment) []error {
	var errs []error
	for _, a := range as {
		if a.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Group, a.Err))
		}
	}
	return errs
}
