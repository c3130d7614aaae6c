package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 120*time.Second, cfg.Timeouts.Info)
	assert.Equal(t, 300*time.Second, cfg.Timeouts.Install)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.Power)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
data_dir: /srv/burrow
agent:
  url: https://node-1.example:8470
timeouts:
  info: 30s
schedules:
  lease_monitor: ""
log:
  level: debug
  json: true
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/srv/burrow", cfg.DataDir)
	assert.Equal(t, "https://node-1.example:8470", cfg.Agent.URL)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Info)
	// Untouched fields keep their defaults
	assert.Equal(t, 300*time.Second, cfg.Timeouts.Install)
	assert.Equal(t, "127.0.0.1:8480", cfg.API.Addr)
	assert.Equal(t, "@every 30s", cfg.Schedules.FailoverTick)
	assert.Empty(t, cfg.Schedules.LeaseMonitor)
	assert.True(t, cfg.Log.JSON)
}

func TestExpandVars(t *testing.T) {
	t.Setenv("BURROW_TEST_ROOT", "/data")

	cfg, err := Parse([]byte(`data_dir: ${BURROW_TEST_ROOT}/burrow`))
	require.NoError(t, err)
	assert.Equal(t, "/data/burrow", cfg.DataDir)

	cfg, err = Parse([]byte(`data_dir: ${BURROW_TEST_UNSET:-/tmp/fallback}`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fallback", cfg.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "data dir", mutate: func(c *Config) { c.DataDir = "" }, field: "data_dir"},
		{name: "api addr", mutate: func(c *Config) { c.API.Addr = "" }, field: "api.addr"},
		{name: "agent scheme", mutate: func(c *Config) { c.Agent.URL = "ftp://node" }, field: "agent.url"},
		{name: "agent host", mutate: func(c *Config) { c.Agent.URL = "http://" }, field: "agent.url"},
		{name: "retries", mutate: func(c *Config) { c.Health.Retries = 0 }, field: "health.retries"},
		{name: "schedule", mutate: func(c *Config) { c.Schedules.ShardMonitor = "sometimes" }, field: "schedules.shard_monitor"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, field: "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burrow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  addr: 0.0.0.0:9000\n"), 0o600))

	t.Setenv(EnvVar, path)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.API.Addr)

	t.Setenv(EnvVar, "")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("api: [not, a, map]"))
	assert.Error(t, err)
}
