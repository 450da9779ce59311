// Package config provides configuration management for the emf-tenancy CLI.
//
// It implements the disciplined Viper pattern where Viper stays contained
// in this package and the rest of the codebase receives explicit Config structs.
// Configuration sources are resolved in this order: flags > env > config file > .env > defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// ErrMissingSettings is returned by Load when a service URL can neither be read nor derived.
var ErrMissingSettings = errors.New("missing required environment variables")

// Config is the explicit configuration struct
// This is what the rest of the codebase sees
type Config struct {
	ClusterFQDN      string
	Identity         IdentityConfig
	OrchestrationURL string `validate:"required,url"`
	VerifyTLS        bool

	Poll        PollConfig
	Parallelism int `validate:"min=1,max=64"`

	LogLevel    string `validate:"oneof=trace debug info warn error"`
	Trace       bool
	MetricsFile string
}

// IdentityConfig locates the Keycloak realm and the platform admin credentials.
type IdentityConfig struct {
	URL       string `validate:"required,url"`
	Realm     string `validate:"required"`
	ClientID  string `validate:"required"`
	Scope     string
	AdminUser string `validate:"required"`
	AdminPass string
}

// PollConfig bounds every wait for eventually consistent state.
type PollConfig struct {
	Interval time.Duration `validate:"gt=0"`
	Timeout  time.Duration `validate:"gt=0"`
}

// Init initializes viper with defaults and config file paths
func Init() error {
	// .env only fills variables that are not already set
	if err := gotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .env file: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath("$HOME/.emf-tenancy")
	viper.AddConfigPath(".")

	viper.SetDefault("cluster-fqdn", "")
	viper.SetDefault("keycloak-url", "")
	viper.SetDefault("keycloak-realm", "master")
	viper.SetDefault("keycloak-client-id", "system-client")
	viper.SetDefault("keycloak-scope", "openid")
	viper.SetDefault("keycloak-admin-user", "admin")
	viper.SetDefault("keycloak-admin-pass", "admin")
	viper.SetDefault("emf-api-url", "")
	viper.SetDefault("verify-ssl", true)
	viper.SetDefault("poll-interval", 2)
	viper.SetDefault("poll-timeout", 60)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("trace", false)
	viper.SetDefault("metrics-file", "")
	viper.SetDefault("parallelism", 4)

	// keycloak-url is read from KEYCLOAK_URL
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return nil
}

// Load reads from all sources and returns explicit Config
func Load() (*Config, error) {
	fqdn := strings.TrimSpace(viper.GetString("cluster-fqdn"))

	cfg := &Config{
		ClusterFQDN: fqdn,
		Identity: IdentityConfig{
			URL:       derive(viper.GetString("keycloak-url"), fqdn, "keycloak"),
			Realm:     viper.GetString("keycloak-realm"),
			ClientID:  viper.GetString("keycloak-client-id"),
			Scope:     viper.GetString("keycloak-scope"),
			AdminUser: viper.GetString("keycloak-admin-user"),
			AdminPass: viper.GetString("keycloak-admin-pass"),
		},
		OrchestrationURL: derive(viper.GetString("emf-api-url"), fqdn, "api"),
		VerifyTLS:        viper.GetBool("verify-ssl"),
		Poll: PollConfig{
			Interval: time.Duration(viper.GetInt("poll-interval")) * time.Second,
			Timeout:  time.Duration(viper.GetInt("poll-timeout")) * time.Second,
		},
		Parallelism: viper.GetInt("parallelism"),
		LogLevel:    strings.ToLower(viper.GetString("log-level")),
		Trace:       viper.GetBool("trace"),
		MetricsFile: viper.GetString("metrics-file"),
	}

	var missing []string
	if cfg.Identity.URL == "" {
		missing = append(missing, "CLUSTER_FQDN (or KEYCLOAK_URL)")
	}
	if cfg.OrchestrationURL == "" {
		missing = append(missing, "CLUSTER_FQDN (or EMF_API_URL)")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSettings, strings.Join(missing, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// derive returns explicit without a trailing slash, or https://{host}.{fqdn} when only the
// cluster FQDN is known.
func derive(explicit, fqdn, host string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if fqdn == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.%s", host, fqdn)
}

var validate = validator.New()

// Validate ensures config is sane
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s (%v) failed %q", fe.Namespace(), fe.Value(), fe.Tag()))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Save writes cfg to path as YAML. Credentials are left out.
func Save(cfg *Config, path string) error {
	v := viper.New()
	v.Set("cluster-fqdn", cfg.ClusterFQDN)
	v.Set("keycloak-url", cfg.Identity.URL)
	v.Set("keycloak-realm", cfg.Identity.Realm)
	v.Set("keycloak-client-id", cfg.Identity.ClientID)
	v.Set("keycloak-scope", cfg.Identity.Scope)
	v.Set("keycloak-admin-user", cfg.Identity.AdminUser)
	v.Set("emf-api-url", cfg.OrchestrationURL)
	v.Set("verify-ssl", cfg.VerifyTLS)
	v.Set("poll-interval", int(cfg.Poll.Interval/time.Second))
	v.Set("poll-timeout", int(cfg.Poll.Timeout/time.Second))
	v.Set("parallelism", cfg.Parallelism)
	v.Set("log-level", cfg.LogLevel)

	return v.WriteConfigAs(path)
}

// Display shows current config (for emf-tenancy config show)
func Display() (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = "(not found)"
	}

	return fmt.Sprintf(`Configuration:
  cluster-fqdn:        %s
  verify-ssl:          %t
  poll-interval:       %s
  poll-timeout:        %s
  parallelism:         %d
  log-level:           %s
  trace:               %t
  metrics-file:        %s

Identity (Keycloak):
  url:                 %s
  realm:               %s
  client-id:           %s
  scope:               %s
  admin-user:          %s
  admin-pass:          %s

Orchestration (EMF):
  url:                 %s

Sources:
  Config file:         %s
  Environment:         CLUSTER_FQDN, KEYCLOAK_*, EMF_API_URL, ...
  Flags:               (per command)
`,
		orNone(cfg.ClusterFQDN),
		cfg.VerifyTLS,
		cfg.Poll.Interval,
		cfg.Poll.Timeout,
		cfg.Parallelism,
		cfg.LogLevel,
		cfg.Trace,
		orNone(cfg.MetricsFile),
		cfg.Identity.URL,
		cfg.Identity.Realm,
		cfg.Identity.ClientID,
		cfg.Identity.Scope,
		cfg.Identity.AdminUser,
		mask(cfg.Identity.AdminPass),
		cfg.OrchestrationURL,
		configFile,
	), nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func mask(secret string) string {
	if secret == "" {
		return "(empty)"
	}
	return "********"
}
