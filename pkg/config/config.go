package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application options for talksync. Per-group member lists
// live in separate JSON files, see LoadGroup.
type Config struct {
	// Group config file location and endpoint overrides
	Groups GroupsConfig `yaml:"groups" json:"groups"`

	// Outgoing HTTP behaviour
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Sync run behaviour
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Prometheus textfile output
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Archive HTTP server
	Server ServerConfig `yaml:"server" json:"server"`
}

// GroupsConfig selects which groups are synced and where their config files live
type GroupsConfig struct {
	ConfigDir string            `yaml:"config_dir" json:"config_dir"`
	Enabled   []string          `yaml:"enabled" json:"enabled"`
	BaseURLs  map[string]string `yaml:"base_urls" json:"base_urls"`
}

// HTTPConfig holds timeouts and request pacing for the group APIs
type HTTPConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
}

// SyncConfig holds sync run options
type SyncConfig struct {
	ConcurrentMembers int  `yaml:"concurrent_members" json:"concurrent_members"`
	ParallelGroups    bool `yaml:"parallel_groups" json:"parallel_groups"`
	Ledger            bool `yaml:"ledger" json:"ledger"`
	Strict            bool `yaml:"strict" json:"strict"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration. Dir receives the daily
// "<yyyyMMdd>_<tag>log.log" file and the "<tag>Error.log" file.
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	Dir     string `yaml:"dir" json:"dir"`
	Tag     string `yaml:"tag" json:"tag"`
	Console bool   `yaml:"console" json:"console"`
}

// MetricsConfig controls the node_exporter textfile written after each run
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Textfile string `yaml:"textfile" json:"textfile"`
}

// ServerConfig holds the archive server options
type ServerConfig struct {
	Addr        string `yaml:"addr" json:"addr"`
	FileBaseURL string `yaml:"file_base_url" json:"file_base_url"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Groups: GroupsConfig{
			ConfigDir: "config",
			Enabled:   []string{"nogi", "saku", "hina"},
			BaseURLs:  map[string]string{},
		},
		HTTP: HTTPConfig{
			RequestTimeout:    30 * time.Second,
			DownloadTimeout:   120 * time.Second,
			RequestsPerSecond: 0, // unlimited
			Burst:             1,
		},
		Sync: SyncConfig{
			ConcurrentMembers: 1,
			ParallelGroups:    false,
			Ledger:            true,
			Strict:            false,
		},
		Notifications: NotificationConfig{
			Enabled:          false,
			OnComplete:       true,
			OnError:          true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Dir:     "log",
			Tag:     "talksync",
			Console: true,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Textfile: "talksync.prom",
		},
		Server: ServerConfig{
			Addr:        ":8000",
			FileBaseURL: "",
		},
	}
}

// LoadFromEnv loads configuration from TALKSYNC_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if dir := os.Getenv("TALKSYNC_CONFIG_DIR"); dir != "" {
		c.Groups.ConfigDir = dir
	}
	if groups := os.Getenv("TALKSYNC_GROUPS"); groups != "" {
		c.Groups.Enabled = splitList(groups)
	}

	if v := os.Getenv("TALKSYNC_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TALKSYNC_REQUEST_TIMEOUT: %w", err))
		} else {
			c.HTTP.RequestTimeout = d
		}
	}
	if v := os.Getenv("TALKSYNC_DOWNLOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TALKSYNC_DOWNLOAD_TIMEOUT: %w", err))
		} else {
			c.HTTP.DownloadTimeout = d
		}
	}
	if v := os.Getenv("TALKSYNC_REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TALKSYNC_REQUESTS_PER_SECOND: %w", err))
		} else {
			c.HTTP.RequestsPerSecond = rps
		}
	}

	if v := os.Getenv("TALKSYNC_CONCURRENT_MEMBERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TALKSYNC_CONCURRENT_MEMBERS: %w", err))
		} else if n > 0 {
			c.Sync.ConcurrentMembers = n
		}
	}
	if v := os.Getenv("TALKSYNC_PARALLEL_GROUPS"); v != "" {
		c.Sync.ParallelGroups = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("TALKSYNC_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("TALKSYNC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TALKSYNC_LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}

	if v := os.Getenv("TALKSYNC_METRICS_TEXTFILE"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Textfile = v
	}

	if v := os.Getenv("TALKSYNC_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TALKSYNC_FILE_BASE_URL"); v != "" {
		c.Server.FileBaseURL = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"talksync.yaml",
		"talksync.yml",
		".talksync.yaml",
		filepath.Join(home, ".config", "talksync", "config.yaml"),
		filepath.Join(home, ".talksync.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Groups.ConfigDir == "" {
		errs = append(errs, errors.New("group config directory is required"))
	}
	if len(c.Groups.Enabled) == 0 {
		errs = append(errs, errors.New("at least one group must be enabled"))
	}
	for _, g := range c.Groups.Enabled {
		if strings.TrimSpace(g) == "" {
			errs = append(errs, errors.New("group name cannot be empty"))
		}
	}

	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.HTTP.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.HTTP.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}
	if c.HTTP.RequestsPerSecond > 0 && c.HTTP.Burst <= 0 {
		errs = append(errs, errors.New("burst must be positive when rate limiting is enabled"))
	}

	if c.Sync.ConcurrentMembers <= 0 {
		errs = append(errs, errors.New("concurrent members must be positive"))
	}
	if c.Sync.ConcurrentMembers > 16 {
		errs = append(errs, errors.New("concurrent members should not exceed 16"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.Tag == "" {
		errs = append(errs, errors.New("log tag is required"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "both": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		errs = append(errs, errors.New("metrics textfile path is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if dir, ok := flags["config-dir"].(string); ok && dir != "" {
		c.Groups.ConfigDir = dir
	}
	if groups, ok := flags["groups"].([]string); ok && len(groups) > 0 {
		c.Groups.Enabled = groups
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Sync.ConcurrentMembers = concurrent
	}
	if parallel, ok := flags["parallel-groups"].(bool); ok {
		c.Sync.ParallelGroups = parallel
	}
	if strict, ok := flags["strict"].(bool); ok {
		c.Sync.Strict = strict
	}
	if timeout, ok := flags["request-timeout"].(time.Duration); ok && timeout > 0 {
		c.HTTP.RequestTimeout = timeout
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logDir, ok := flags["log-dir"].(string); ok && logDir != "" {
		c.Logging.Dir = logDir
	}
	if enabled, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = enabled
	}
	if textfile, ok := flags["metrics-textfile"].(string); ok && textfile != "" {
		c.Metrics.Enabled = true
		c.Metrics.Textfile = textfile
	}
	if addr, ok := flags["addr"].(string); ok && addr != "" {
		c.Server.Addr = addr
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".talksync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
