package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleYAML = `users:
  - username: bob
    create: true
    password: hunter2
    organization: acme
    projects: [p1, p2]
    role: project-user
  - username: carol
    organization: acme
    role: custom
    suffixes: [edge-manager, Host-Manager-Group]
    orgAdmin: true
`

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grants.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m.Users) != 2 {
		t.Fatalf("users = %d, want 2", len(m.Users))
	}
	bob := m.Users[0]
	if bob.Username != "bob" || !bob.Create || bob.Password != "hunter2" || len(bob.Projects) != 2 {
		t.Errorf("bob = %+v", bob)
	}

	req := m.Users[1].Request()
	if req.Role != "custom" || !req.Custom.OrgAdmin || len(req.Custom.Suffixes) != 2 {
		t.Errorf("carol request = %+v", req)
	}
}

func TestSaveDropsPasswords(t *testing.T) {
	m := &Manifest{Users: []Grant{{Username: "bob", Password: "hunter2", Organization: "acme", Role: "project-admin"}}}

	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := Save(m, path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if strings.Contains(string(data), "hunter2") {
				t.Errorf("saved file contains the password:\n%s", data)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.Users[0].Username != "bob" || loaded.Users[0].Role != "project-admin" {
				t.Errorf("loaded = %+v", loaded.Users[0])
			}
		})
	}
	if m.Users[0].Password != "hunter2" {
		t.Error("Save() modified the caller's manifest")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"users": [`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() succeeded on truncated JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		grant     Grant
		wantValid bool
		wantError string
	}{
		{
			name:      "project admin",
			grant:     Grant{Username: "bob", Organization: "acme", Role: "project-admin"},
			wantValid: true,
		},
		{
			name:      "project user with all projects",
			grant:     Grant{Username: "bob", Organization: "acme", Role: "project-user", AllProjects: true},
			wantValid: true,
		},
		{
			name:      "missing username",
			grant:     Grant{Organization: "acme", Role: "project-admin"},
			wantError: "Username",
		},
		{
			name:      "bad email",
			grant:     Grant{Username: "bob", Email: "not-an-email", Organization: "acme", Role: "project-admin"},
			wantError: "Email",
		},
		{
			name:      "unknown role",
			grant:     Grant{Username: "bob", Organization: "acme", Role: "owner"},
			wantError: "unknown role",
		},
		{
			name:      "project user without projects",
			grant:     Grant{Username: "bob", Organization: "acme", Role: "project-user"},
			wantError: "needs projects",
		},
		{
			name:      "custom without selection",
			grant:     Grant{Username: "bob", Organization: "acme", Role: "custom"},
			wantError: "selects no groups",
		},
		{
			name:      "unknown suffix",
			grant:     Grant{Username: "bob", Organization: "acme", Role: "custom", Suffixes: []string{"root"}, OrgAdmin: true},
			wantError: "unknown group suffix",
		},
		{
			name:      "suffixes on a fixed role",
			grant:     Grant{Username: "bob", Organization: "acme", Role: "project-admin", Suffixes: []string{"edge-manager"}},
			wantError: "only apply to the custom role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(&Manifest{Users: []Grant{tt.grant}})
			if result.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, errors = %v", result.Valid, result.Errors)
			}
			if tt.wantError == "" {
				return
			}
			found := false
			for _, e := range result.Errors {
				if strings.Contains(e, tt.wantError) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors = %v, want one containing %q", result.Errors, tt.wantError)
			}
		})
	}
}

func TestValidateEmptyManifest(t *testing.T) {
	if result := Validate(&Manifest{}); result.Valid {
		t.Error("empty manifest is valid")
	}
}

func TestValidationResult(t *testing.T) {
	result := &ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	result.addError("test %s", "error")

	if result.Valid {
		t.Error("ValidationResult should be invalid after adding error")
	}
	if len(result.Errors) != 1 || result.Errors[0] != "test error" {
		t.Errorf("Errors = %v", result.Errors)
	}
}
