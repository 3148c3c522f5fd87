// Package config loads commentdm settings from built-in defaults, an optional
// YAML file, an optional .env file and the process environment, in that order.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"commentdm/internal/graph"
	"commentdm/internal/replier"
	"commentdm/internal/security"
	"commentdm/pkg/fileutil"
)

const (
	// ConfigFileName is the file searched for in the default config paths.
	ConfigFileName = "commentdm.yaml"

	DefaultHost         = "0.0.0.0"
	DefaultPort         = 3000
	DefaultStatePath    = "./data.json"
	DefaultLogFile      = "./commentdm.log"
	DefaultGraphTimeout = 30 * time.Second
)

// Config holds every runtime setting.
type Config struct {
	VerifyToken     string `yaml:"verify_token"`
	PageAccessToken string `yaml:"page_access_token"`
	AdminPassword   string `yaml:"admin_password"`
	AppSecret       string `yaml:"app_secret"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	StatePath string `yaml:"state_path"`
	LogFile   string `yaml:"log_file"`
	DBPath    string `yaml:"db_path"`

	GraphBaseURL string        `yaml:"graph_base_url"`
	GraphTimeout time.Duration `yaml:"graph_timeout"`
	Object       string        `yaml:"object"`

	// Source is the YAML file the config was read from, if any.
	Source string `yaml:"-"`
}

// envBinding maps an environment variable onto a Config field.
type envBinding struct {
	name  string
	apply func(c *Config, value string) error
}

var envBindings = []envBinding{
	{"VERIFY_TOKEN", func(c *Config, v string) error { c.VerifyToken = v; return nil }},
	{"PAGE_ACCESS_TOKEN", func(c *Config, v string) error { c.PageAccessToken = v; return nil }},
	{"ADMIN_PASSWORD", func(c *Config, v string) error { c.AdminPassword = v; return nil }},
	{"APP_SECRET", func(c *Config, v string) error { c.AppSecret = v; return nil }},
	{"COMMENTDM_HOST", func(c *Config, v string) error { c.Host = v; return nil }},
	{"PORT", func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT must be an integer, got %q", v)
		}
		c.Port = port
		return nil
	}},
	{"COMMENTDM_STATE", func(c *Config, v string) error { c.StatePath = v; return nil }},
	{"COMMENTDM_LOG_FILE", func(c *Config, v string) error { c.LogFile = v; return nil }},
	{"COMMENTDM_DB_PATH", func(c *Config, v string) error { c.DBPath = v; return nil }},
	{"COMMENTDM_GRAPH_URL", func(c *Config, v string) error { c.GraphBaseURL = v; return nil }},
	{"COMMENTDM_GRAPH_TIMEOUT", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COMMENTDM_GRAPH_TIMEOUT must be a duration, got %q", v)
		}
		c.GraphTimeout = d
		return nil
	}},
	{"COMMENTDM_OBJECT", func(c *Config, v string) error { c.Object = v; return nil }},
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		StatePath:    DefaultStatePath,
		LogFile:      DefaultLogFile,
		GraphBaseURL: graph.DefaultBaseURL,
		GraphTimeout: DefaultGraphTimeout,
		Object:       replier.DefaultObject,
	}
}

// Load builds the effective configuration. configPath may be empty, in which
// case the default search paths are tried and a missing file is not an error.
// envFile is loaded without overriding variables already set in the
// environment; a missing envFile is ignored.
func Load(configPath, envFile string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = fileutil.FindConfigOptional(ConfigFileName)
	}
	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, err
		}
	}

	if envFile != "" && fileutil.FileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile reads a YAML config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	c.Source = path
	return nil
}

// ApplyEnv overrides fields from environment variables that are set and non-empty.
func (c *Config) ApplyEnv() error {
	for _, b := range envBindings {
		value, ok := os.LookupEnv(b.name)
		if !ok || value == "" {
			continue
		}
		if err := b.apply(c, value); err != nil {
			return err
		}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate returns configuration errors that prevent the server from starting.
func (c *Config) Validate() []string {
	var errors []string

	if c.Port < 1 || c.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - port must be between 1 and 65535, got %d", c.Port))
	}

	if strings.TrimSpace(c.StatePath) == "" {
		errors = append(errors, "  - state_path must not be empty")
	}

	if c.GraphTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - graph_timeout must not be negative, got %s", c.GraphTimeout))
	}

	if u, err := url.Parse(c.GraphBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("  - graph_base_url must be an http(s) URL, got '%s'", c.GraphBaseURL))
	}

	if strings.TrimSpace(c.Object) == "" {
		errors = append(errors, "  - object must not be empty")
	}

	return errors
}

// Warnings returns non-fatal problems: unset secrets that leave a surface
// closed, weak secrets, and a config file readable by other users.
func (c *Config) Warnings() []string {
	var warnings []string

	secrets := []struct {
		name    string
		value   string
		missing string
	}{
		{"VERIFY_TOKEN", c.VerifyToken, "webhook verification will always be refused"},
		{"ADMIN_PASSWORD", c.AdminPassword, "admin pages will always answer 401"},
		{"PAGE_ACCESS_TOKEN", c.PageAccessToken, "private replies will be rejected by the Graph API"},
	}

	for _, s := range secrets {
		if s.value == "" {
			warnings = append(warnings, fmt.Sprintf("%s is not set, %s", s.name, s.missing))
			continue
		}
		if s.name != "PAGE_ACCESS_TOKEN" && security.IsWeakSecret(s.value) {
			warnings = append(warnings, fmt.Sprintf("%s looks weak, use 'commentdm gen-secret' to create one", s.name))
		}
	}

	if c.AppSecret == "" {
		warnings = append(warnings, "APP_SECRET is not set, webhook payload signatures are not checked")
	}

	if c.Source != "" && (c.VerifyToken != "" || c.AdminPassword != "") {
		if err := security.ValidateSecurePermissions(c.Source); err != nil {
			warnings = append(warnings, err.Error())
		}
	}

	return warnings
}
