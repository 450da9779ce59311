package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validConfig() Config {
	return Config{
		Identity: IdentityConfig{
			URL:       "https://keycloak.example.com",
			Realm:     "master",
			ClientID:  "system-client",
			Scope:     "openid",
			AdminUser: "admin",
			AdminPass: "admin",
		},
		OrchestrationURL: "https://api.example.com",
		VerifyTLS:        true,
		Poll:             PollConfig{Interval: 2 * time.Second, Timeout: time.Minute},
		Parallelism:      4,
		LogLevel:         "info",
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "debug log level",
			mutate:  func(c *Config) { c.LogLevel = "debug" },
			wantErr: false,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid identity url",
			mutate:  func(c *Config) { c.Identity.URL = "keycloak" },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Poll.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "negative poll timeout",
			mutate:  func(c *Config) { c.Poll.Timeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "parallelism zero",
			mutate:  func(c *Config) { c.Parallelism = 0 },
			wantErr: true,
		},
		{
			name:    "missing realm",
			mutate:  func(c *Config) { c.Identity.Realm = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// initFresh resets viper and initializes it from an empty working directory.
func initFresh(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
}

func TestLoadDerivesURLsFromFQDN(t *testing.T) {
	t.Setenv("CLUSTER_FQDN", "cluster.example.com")
	initFresh(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Identity.URL != "https://keycloak.cluster.example.com" {
		t.Errorf("Identity.URL = %q", cfg.Identity.URL)
	}
	if cfg.OrchestrationURL != "https://api.cluster.example.com" {
		t.Errorf("OrchestrationURL = %q", cfg.OrchestrationURL)
	}
	if cfg.Identity.Realm != "master" || cfg.Identity.ClientID != "system-client" || cfg.Identity.Scope != "openid" {
		t.Errorf("identity defaults = %+v", cfg.Identity)
	}
	if cfg.Identity.AdminUser != "admin" || cfg.Identity.AdminPass != "admin" {
		t.Errorf("admin defaults = %q/%q", cfg.Identity.AdminUser, cfg.Identity.AdminPass)
	}
	if cfg.Poll.Interval != 2*time.Second || cfg.Poll.Timeout != 60*time.Second {
		t.Errorf("Poll = %+v", cfg.Poll)
	}
	if !cfg.VerifyTLS || cfg.Parallelism != 4 || cfg.LogLevel != "info" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadExplicitURLsWin(t *testing.T) {
	t.Setenv("CLUSTER_FQDN", "cluster.example.com")
	t.Setenv("KEYCLOAK_URL", "https://sso.internal/")
	t.Setenv("EMF_API_URL", "https://emf.internal")
	t.Setenv("VERIFY_SSL", "false")
	t.Setenv("POLL_TIMEOUT", "5")
	initFresh(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Identity.URL != "https://sso.internal" || cfg.OrchestrationURL != "https://emf.internal" {
		t.Errorf("urls = %q, %q", cfg.Identity.URL, cfg.OrchestrationURL)
	}
	if cfg.VerifyTLS || cfg.Poll.Timeout != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFailsFastWithoutURLs(t *testing.T) {
	t.Setenv("CLUSTER_FQDN", "")
	t.Setenv("KEYCLOAK_URL", "")
	t.Setenv("EMF_API_URL", "")
	initFresh(t)

	_, err := Load()
	if !errors.Is(err, ErrMissingSettings) {
		t.Fatalf("Load() error = %v, want missing settings", err)
	}
	for _, want := range []string{"CLUSTER_FQDN (or KEYCLOAK_URL)", "CLUSTER_FQDN (or EMF_API_URL)"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestDotEnvFillsUnsetVariables(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KEYCLOAK_REALM", "tenants")
	// Registered so t.Setenv restores them after gotenv sets them.
	t.Setenv("CLUSTER_FQDN", "")
	os.Unsetenv("CLUSTER_FQDN")

	env := "CLUSTER_FQDN=dotenv.example.com\nKEYCLOAK_REALM=ignored\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0600); err != nil {
		t.Fatal(err)
	}
	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClusterFQDN != "dotenv.example.com" {
		t.Errorf("ClusterFQDN = %q", cfg.ClusterFQDN)
	}
	if cfg.Identity.Realm != "tenants" {
		t.Errorf("Realm = %q, want the environment to win over .env", cfg.Identity.Realm)
	}
}

func TestSaveOmitsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Identity.AdminPass = "hunter2"
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Errorf("saved config contains the password:\n%s", data)
	}
	if !strings.Contains(string(data), "https://keycloak.example.com") {
		t.Errorf("saved config missing keycloak-url:\n%s", data)
	}
}

func TestDisplayMasksPassword(t *testing.T) {
	t.Setenv("CLUSTER_FQDN", "cluster.example.com")
	t.Setenv("KEYCLOAK_ADMIN_PASS", "hunter2")
	initFresh(t)

	out, err := Display()
	if err != nil {
		t.Fatalf("Display() error = %v", err)
	}
	if strings.Contains(out, "hunter2") || !strings.Contains(out, "********") {
		t.Errorf("Display() did not mask the password:\n%s", out)
	}
}
