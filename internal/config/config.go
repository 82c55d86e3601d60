// Package config provides YAML-based configuration loading for Foundry.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "15s" or "5m" parse
// directly. Bare integers are interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration %q: %w", value.Value, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level Foundry configuration, loaded from foundry.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`

	ScanInterval           Duration `yaml:"scan_interval"`
	NewBuilderScanInterval Duration `yaml:"new_builder_scan_interval"`
	CancelTimeout          Duration `yaml:"cancel_timeout"`

	JobResetThreshold           int `yaml:"job_reset_threshold"`
	BuilderResetThreshold       int `yaml:"builder_reset_threshold"`
	BuilderResetFailureMultiple int `yaml:"builder_reset_failure_multiple"`

	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
	GitHub    GitHubConfig    `yaml:"github"`

	Builders []BuilderConfig `yaml:"builders"`
}

// DatabaseConfig holds connection settings for the job store database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "mysql" (default) or "sqlite"
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
	Pass   string `yaml:"pass"`
	Path   string `yaml:"path"` // sqlite only
}

// DashboardConfig holds settings for the read-only status API.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig holds operator notification settings.
type NotifyConfig struct {
	Slack          SlackConfig   `yaml:"slack"`
	Discord        DiscordConfig `yaml:"discord"`
	DigestSchedule string        `yaml:"digest_schedule"` // 5-field cron, optional
}

// SlackConfig holds Slack notifier credentials.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// DiscordConfig holds Discord notifier credentials.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// GitHubConfig holds an optional API token used by the ci build behaviour
// to resolve refs to commit hashes at dispatch time.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// BuilderConfig declares a builder to be seeded into the database.
type BuilderConfig struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Arch        string `yaml:"arch"`
	Virtualized bool   `yaml:"virtualized"`
	VMHost      string `yaml:"vm_host"`
	Manual      bool   `yaml:"manual"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "foundry"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Path == "" {
		c.Database.Path = "foundry.db"
	}
	if c.ScanInterval == 0 {
		c.ScanInterval = Duration(15 * time.Second)
	}
	if c.NewBuilderScanInterval == 0 {
		c.NewBuilderScanInterval = Duration(5 * time.Minute)
	}
	if c.CancelTimeout == 0 {
		c.CancelTimeout = Duration(3 * time.Minute)
	}
	if c.JobResetThreshold == 0 {
		c.JobResetThreshold = 3
	}
	if c.BuilderResetThreshold == 0 {
		c.BuilderResetThreshold = 5
	}
	if c.BuilderResetFailureMultiple == 0 {
		c.BuilderResetFailureMultiple = 3
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Database.Driver != "mysql" && c.Database.Driver != "sqlite" {
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql or sqlite", c.Database.Driver))
	}
	if c.ScanInterval < 0 {
		errs = append(errs, "scan_interval must be positive")
	}
	if c.NewBuilderScanInterval < 0 {
		errs = append(errs, "new_builder_scan_interval must be positive")
	}
	if c.CancelTimeout < 0 {
		errs = append(errs, "cancel_timeout must be positive")
	}
	if c.JobResetThreshold < 0 {
		errs = append(errs, "job_reset_threshold must be positive")
	}
	if c.BuilderResetThreshold < 0 {
		errs = append(errs, "builder_reset_threshold must be positive")
	}
	if c.BuilderResetFailureMultiple < 0 {
		errs = append(errs, "builder_reset_failure_multiple must be positive")
	}
	seen := make(map[string]bool)
	for i, b := range c.Builders {
		if b.Name == "" {
			errs = append(errs, fmt.Sprintf("builders[%d].name is required", i))
			continue
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Sprintf("builders[%d].name %q is duplicated", i, b.Name))
		}
		seen[b.Name] = true
		if b.URL == "" {
			errs = append(errs, fmt.Sprintf("builders[%d].url is required", i))
		}
		if b.Arch == "" {
			errs = append(errs, fmt.Sprintf("builders[%d].arch is required", i))
		}
		if b.Virtualized && b.VMHost == "" {
			errs = append(errs, fmt.Sprintf("builders[%d].vm_host is required for virtualized builders", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
