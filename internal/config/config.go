// Package config loads fieldsync configuration from a YAML file and
// FIELDSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// StoreConfig configures the local queue database.
type StoreConfig struct {
	// Path is the SQLite database file. Defaults to
	// $HOME/.fieldsync/queue.db.
	Path string `mapstructure:"path"`

	// QuotaBytes caps how much local disk the queue may use. Zero means
	// unlimited.
	QuotaBytes int64 `mapstructure:"quota_bytes"`
}

// RemoteConfig configures the hosted backend.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes the sync scheduler.
type SyncConfig struct {
	// MaxRetries bounds submission attempts per queued item.
	MaxRetries int `mapstructure:"max_retries"`

	// SubmitTimeout bounds each individual remote submission.
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
}

// DaemonConfig configures the background sync daemon.
type DaemonConfig struct {
	// SpoolDir is watched for dropped capture files. Empty disables the
	// watcher.
	SpoolDir string `mapstructure:"spool_dir"`

	// Interval is the periodic sync cadence.
	Interval time.Duration `mapstructure:"interval"`

	// MaxBackoff caps the exponential backoff applied after failed
	// passes.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

// DashboardConfig configures the local progress dashboard.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Format is text or json.
	Format string `mapstructure:"format"`

	// File enables rotating file output when set; empty logs to stderr.
	File string `mapstructure:"file"`

	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".fieldsync")

	v.SetDefault("store.path", filepath.Join(base, "queue.db"))
	v.SetDefault("store.quota_bytes", int64(512<<20))

	v.SetDefault("remote.timeout", 30*time.Second)

	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.submit_timeout", 30*time.Second)

	v.SetDefault("daemon.spool_dir", "")
	v.SetDefault("daemon.interval", 60*time.Second)
	v.SetDefault("daemon.max_backoff", 10*time.Minute)

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.addr", "127.0.0.1:8790")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
}

// Load reads configuration from path. An empty path searches the usual
// locations ($HOME/.fieldsync/config.yaml, then the working directory) and
// a missing file is not an error; environment variables and defaults still
// apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".fieldsync"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.QuotaBytes < 0 {
		return fmt.Errorf("store.quota_bytes cannot be negative")
	}
	if c.Sync.MaxRetries <= 0 {
		return fmt.Errorf("sync.max_retries must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error (got %q)", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}
