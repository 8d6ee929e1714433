package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "config", cfg.Groups.ConfigDir)
	assert.Equal(t, []string{"nogi", "saku", "hina"}, cfg.Groups.Enabled)

	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 120*time.Second, cfg.HTTP.DownloadTimeout)
	assert.Zero(t, cfg.HTTP.RequestsPerSecond)

	assert.Equal(t, 1, cfg.Sync.ConcurrentMembers)
	assert.False(t, cfg.Sync.ParallelGroups)
	assert.True(t, cfg.Sync.Ledger)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "log", cfg.Logging.Dir)
	assert.Equal(t, "talksync", cfg.Logging.Tag)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TALKSYNC_CONFIG_DIR", "/etc/talksync")
	t.Setenv("TALKSYNC_GROUPS", "nogi, hina")
	t.Setenv("TALKSYNC_REQUEST_TIMEOUT", "5s")
	t.Setenv("TALKSYNC_CONCURRENT_MEMBERS", "4")
	t.Setenv("TALKSYNC_PARALLEL_GROUPS", "true")
	t.Setenv("TALKSYNC_LOG_LEVEL", "debug")
	t.Setenv("TALKSYNC_METRICS_TEXTFILE", "/var/lib/node_exporter/talksync.prom")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "/etc/talksync", cfg.Groups.ConfigDir)
	assert.Equal(t, []string{"nogi", "hina"}, cfg.Groups.Enabled)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 4, cfg.Sync.ConcurrentMembers)
	assert.True(t, cfg.Sync.ParallelGroups)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/var/lib/node_exporter/talksync.prom", cfg.Metrics.Textfile)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("TALKSYNC_REQUEST_TIMEOUT", "soon")
	t.Setenv("TALKSYNC_CONCURRENT_MEMBERS", "many")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TALKSYNC_REQUEST_TIMEOUT")
	assert.Contains(t, err.Error(), "TALKSYNC_CONCURRENT_MEMBERS")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "talksync.yaml")
	content := `
groups:
  config_dir: ./groups
  enabled: [saku]
http:
  request_timeout: 10s
  requests_per_second: 2.5
  burst: 3
sync:
  concurrent_members: 2
logging:
  level: warn
  tag: DownMessage
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "./groups", cfg.Groups.ConfigDir)
	assert.Equal(t, []string{"saku"}, cfg.Groups.Enabled)
	assert.Equal(t, 10*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 2.5, cfg.HTTP.RequestsPerSecond)
	assert.Equal(t, 3, cfg.HTTP.Burst)
	assert.Equal(t, 2, cfg.Sync.ConcurrentMembers)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "DownMessage", cfg.Logging.Tag)
	// untouched sections keep their defaults
	assert.Equal(t, 120*time.Second, cfg.HTTP.DownloadTimeout)
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups: [unclosed"), 0644))
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"no groups", func(c *Config) { c.Groups.Enabled = nil }, "at least one group"},
		{"empty config dir", func(c *Config) { c.Groups.ConfigDir = "" }, "config directory"},
		{"zero timeout", func(c *Config) { c.HTTP.RequestTimeout = 0 }, "request timeout"},
		{"negative rps", func(c *Config) { c.HTTP.RequestsPerSecond = -1 }, "requests per second"},
		{"rate without burst", func(c *Config) {
			c.HTTP.RequestsPerSecond = 1
			c.HTTP.Burst = 0
		}, "burst"},
		{"zero concurrency", func(c *Config) { c.Sync.ConcurrentMembers = 0 }, "concurrent members"},
		{"too much concurrency", func(c *Config) { c.Sync.ConcurrentMembers = 17 }, "should not exceed"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"bad notification type", func(c *Config) { c.Notifications.NotificationType = "pager" }, "notification type"},
		{"metrics without path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Textfile = ""
		}, "metrics textfile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"config-dir":       "/srv/config",
		"groups":           []string{"hina"},
		"concurrent":       3,
		"parallel-groups":  true,
		"strict":           true,
		"request-timeout":  15 * time.Second,
		"log-level":        "error",
		"metrics-textfile": "out.prom",
		"addr":             "127.0.0.1:9000",
	})

	assert.Equal(t, "/srv/config", cfg.Groups.ConfigDir)
	assert.Equal(t, []string{"hina"}, cfg.Groups.Enabled)
	assert.Equal(t, 3, cfg.Sync.ConcurrentMembers)
	assert.True(t, cfg.Sync.ParallelGroups)
	assert.True(t, cfg.Sync.Strict)
	assert.Equal(t, 15*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "out.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "talksync.yaml")

	cfg := DefaultConfig()
	cfg.Groups.Enabled = []string{"nogi"}
	cfg.HTTP.RequestTimeout = 7 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path, map[string]interface{}{"log-level": "debug"})
	require.NoError(t, err)

	assert.Equal(t, []string{"nogi"}, loaded.Groups.Enabled)
	assert.Equal(t, 7*time.Second, loaded.HTTP.RequestTimeout)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talksync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  concurrent_members: 0\n"), 0644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}
