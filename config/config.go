package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the agent configuration, loaded from a YAML file. Secrets may be
// overridden from the environment in the command layer.
type Config struct {
	Directory DirectoryConfig `yaml:"directory"`
	Account   AccountConfig   `yaml:"account"`

	WorkingSetDir      string `yaml:"working_set_dir"`
	LogDir             string `yaml:"log_dir"`
	LogLevel           string `yaml:"log_level"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
}

// DirectoryConfig holds the Entra ID tenant and application credentials used
// to call the Microsoft Graph API.
type DirectoryConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	// PrivateKeyFile points at a JWK private key. When set, token requests use
	// a signed client assertion instead of the client secret.
	PrivateKeyFile string `yaml:"private_key_file,omitempty"`
	// TokenURL and GraphURL default to the public Microsoft endpoints for the
	// configured tenant. Overridable for testing.
	TokenURL string `yaml:"token_url,omitempty"`
	GraphURL string `yaml:"graph_url,omitempty"`
	Scope    string `yaml:"scope,omitempty"`
}

// AccountConfig holds the Databricks account SCIM endpoint and token.
type AccountConfig struct {
	Host      string `yaml:"host"`
	AccountID string `yaml:"account_id"`
	Token     string `yaml:"token"`
	// SCIMURL defaults to {host}/api/2.0/accounts/{account_id}/scim/v2.
	SCIMURL string `yaml:"scim_url,omitempty"`
}

const (
	defaultLogLevel           = "info"
	defaultHTTPTimeoutSeconds = 30
	defaultScope              = "https://graph.microsoft.com/.default"
	defaultGraphURL           = "https://graph.microsoft.com/v1.0"
)

// Load reads and validates the agent configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WorkingSetDir == "" {
		c.WorkingSetDir = DefaultWorkingSetDir
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = defaultHTTPTimeoutSeconds
	}
	if c.Directory.Scope == "" {
		c.Directory.Scope = defaultScope
	}
	if c.Directory.GraphURL == "" {
		c.Directory.GraphURL = defaultGraphURL
	}
	if c.Directory.TokenURL == "" && c.Directory.TenantID != "" {
		c.Directory.TokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.Directory.TenantID)
	}
	if c.Account.SCIMURL == "" && c.Account.Host != "" && c.Account.AccountID != "" {
		c.Account.SCIMURL = fmt.Sprintf("%s/api/2.0/accounts/%s/scim/v2", strings.TrimRight(c.Account.Host, "/"), c.Account.AccountID)
	}
}

// Validate checks that the configuration is complete. Called after
// environment overrides are applied, so secrets may arrive either way.
func (c *Config) Validate() error {
	if c.Directory.ClientID == "" {
		return fmt.Errorf("directory.client_id is required")
	}
	if c.Directory.TokenURL == "" {
		return fmt.Errorf("directory.tenant_id (or token_url) is required")
	}
	if c.Directory.ClientSecret == "" && c.Directory.PrivateKeyFile == "" {
		return fmt.Errorf("one of directory.client_secret or directory.private_key_file is required")
	}
	if c.Account.Token == "" {
		return fmt.Errorf("account.token is required")
	}
	if c.Account.SCIMURL == "" {
		return fmt.Errorf("account.host and account.account_id (or scim_url) are required")
	}
	return nil
}
