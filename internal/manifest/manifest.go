// Package manifest reads and writes membership manifests: files listing the role grants to
// apply to users, in the same shape the user manage command accepts on its flags.
//
// Supports both YAML (.yaml, .yml) and JSON (.json) files. Passwords are never written back.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/membership"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/workflow"
)

// Manifest represents the manifest file structure
type Manifest struct {
	Users []Grant `yaml:"users" json:"users" validate:"required,min=1,dive"`
}

// Grant is one user's role assignment.
type Grant struct {
	Username string `yaml:"username" json:"username" validate:"required,max=255"`
	Create   bool   `yaml:"create,omitempty" json:"create,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	Email    string `yaml:"email,omitempty" json:"email,omitempty" validate:"omitempty,email"`

	Organization string   `yaml:"organization" json:"organization" validate:"required"`
	Projects     []string `yaml:"projects,omitempty" json:"projects,omitempty" validate:"dive,required"`
	AllProjects  bool     `yaml:"allProjects,omitempty" json:"allProjects,omitempty"`

	Role     string   `yaml:"role" json:"role" validate:"required"`
	Suffixes []string `yaml:"suffixes,omitempty" json:"suffixes,omitempty"`
	OrgAdmin bool     `yaml:"orgAdmin,omitempty" json:"orgAdmin,omitempty"`
}

// Request converts the grant into a workflow request.
func (g Grant) Request() workflow.UserRequest {
	return workflow.UserRequest{
		Username:     g.Username,
		Create:       g.Create,
		Password:     g.Password,
		Email:        g.Email,
		Organization: g.Organization,
		Projects:     g.Projects,
		AllProjects:  g.AllProjects,
		Role:         g.Role,
		Custom: workflow.CustomSuffixes{
			Suffixes: g.Suffixes,
			OrgAdmin: g.OrgAdmin,
		},
	}
}

// FromRequest converts a workflow request into a grant without its password.
func FromRequest(req workflow.UserRequest) Grant {
	return Grant{
		Username:     req.Username,
		Create:       req.Create,
		Email:        req.Email,
		Organization: req.Organization,
		Projects:     req.Projects,
		AllProjects:  req.AllProjects,
		Role:         req.Role,
		Suffixes:     req.Custom.Suffixes,
		OrgAdmin:     req.Custom.OrgAdmin,
	}
}

// Load loads and parses a manifest file (supports .yaml, .yml, and .json)
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest (unknown extension %s, tried YAML): %w", ext, err)
		}
	}

	return &m, nil
}

// Save saves the manifest to file (format determined by file extension). Passwords are
// dropped.
func Save(m *Manifest, path string) error {
	out := Manifest{Users: make([]Grant, len(m.Users))}
	for i, g := range m.Users {
		g.Password = ""
		out.Users[i] = g
	}

	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		data, err = json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal manifest JSON: %w", err)
		}
	default:
		data, err = yaml.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to marshal manifest YAML: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}

	return nil
}

// ValidationResult collects every problem found in a manifest.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

var validate = validator.New()

// Validate checks field constraints and that each grant's role can be expanded.
func Validate(m *Manifest) *ValidationResult {
	result := &ValidationResult{Valid: true, Errors: []string{}}

	if err := validate.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			result.addError("%v", err)
			return result
		}
		for _, fe := range fieldErrs {
			result.addError("%s: failed %q", fe.Namespace(), fe.Tag())
		}
	}

	for i, g := range m.Users {
		prefix := fmt.Sprintf("users[%d] (%s)", i, g.Username)

		role, err := membership.ParseRole(g.Role)
		if err != nil {
			if g.Role != "" {
				result.addError("%s: %v", prefix, err)
			}
			continue
		}

		custom := membership.CustomSelection{OrgAdmin: g.OrgAdmin}
		for _, s := range g.Suffixes {
			suffix, err := membership.ParseSuffix(s)
			if err != nil {
				result.addError("%s: %v", prefix, err)
				continue
			}
			custom.Suffixes = append(custom.Suffixes, suffix)
		}
		if role != membership.RoleCustom && len(g.Suffixes) > 0 {
			result.addError("%s: suffixes only apply to the custom role", prefix)
		}

		tmpl, err := membership.TemplateFor(role, custom)
		if err != nil {
			result.addError("%s: %v", prefix, err)
			continue
		}
		if tmpl.NeedsProjects() && len(g.Projects) == 0 && !g.AllProjects {
			result.addError("%s: role %s needs projects or allProjects", prefix, role)
		}
		if g.AllProjects && len(g.Projects) > 0 {
			result.addError("%s: projects and allProjects are mutually exclusive", prefix)
		}
	}

	return result
}
