// Package config loads the burrow daemon configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the BURROW_CONFIG environment variable. Missing fields keep the values from
// Default, and ${VAR} or ${VAR:-default} patterns in paths are expanded.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"

	"github.com/cuemby/burrow/pkg/sal"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path from
const EnvVar = "BURROW_CONFIG"

// Config is the daemon configuration
type Config struct {
	// DataDir holds the bbolt database.
	DataDir string `yaml:"data_dir"`

	API   APIConfig   `yaml:"api"`
	Agent AgentConfig `yaml:"agent"`

	// Timeouts bound remote calls by kind.
	Timeouts sal.Timeouts `yaml:"timeouts"`

	Health    HealthConfig    `yaml:"health"`
	Schedules SchedulesConfig `yaml:"schedules"`
	Log       LogConfig       `yaml:"log"`
}

// APIConfig configures the HTTP API
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// AgentConfig points at the node agent that fronts backends, hosts and gateways
type AgentConfig struct {
	URL string `yaml:"url"`
}

// HealthConfig controls gateway liveness debouncing
type HealthConfig struct {
	// Retries is the number of consecutive failed checks before a gateway
	// counts as down.
	Retries int `yaml:"retries"`
}

// SchedulesConfig holds cron specs for the recurring actions. An empty spec
// disables the action.
type SchedulesConfig struct {
	FailoverTick   string `yaml:"failover_tick"`
	ShardMonitor   string `yaml:"shard_monitor"`
	LeaseMonitor   string `yaml:"lease_monitor"`
	MetricsCollect string `yaml:"metrics_collect"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used for fields the file leaves unset
func Default() *Config {
	return &Config{
		DataDir: "/var/lib/burrow",
		API: APIConfig{
			Addr: "127.0.0.1:8480",
		},
		Agent: AgentConfig{
			URL: "http://127.0.0.1:8470",
		},
		Timeouts: sal.DefaultTimeouts(),
		Health: HealthConfig{
			Retries: 1,
		},
		Schedules: SchedulesConfig{
			FailoverTick:   "@every 30s",
			ShardMonitor:   "@every 30s",
			LeaseMonitor:   "@every 2m",
			MetricsCollect: "@every 15s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads the file named by BURROW_CONFIG, or returns Default when unset
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of Default
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Timeouts = cfg.Timeouts.WithDefaults()
	cfg.DataDir = expandVars(cfg.DataDir)
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir is required"))
	}
	if c.API.Addr == "" {
		errs = append(errs, fmt.Errorf("api.addr is required"))
	}

	if u, err := url.Parse(c.Agent.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("agent.url must be an http(s) URL, got %q", c.Agent.URL))
	}

	if c.Health.Retries < 1 {
		errs = append(errs, fmt.Errorf("health.retries must be at least 1"))
	}

	schedules := map[string]string{
		"schedules.failover_tick":   c.Schedules.FailoverTick,
		"schedules.shard_monitor":   c.Schedules.ShardMonitor,
		"schedules.lease_monitor":   c.Schedules.LeaseMonitor,
		"schedules.metrics_collect": c.Schedules.MetricsCollect,
	}
	for field, spec := range schedules {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	return errors.Join(errs...)
}
