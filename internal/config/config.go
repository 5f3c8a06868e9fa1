// Package config loads sessionvault settings.
//
// Settings come from, in increasing precedence: built-in defaults, a TOML
// config file, and SV_* environment variables (dots become underscores, so
// sync.quiet_period is SV_SYNC_QUIET_PERIOD). Command-line flags are bound
// on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SV"

// Config is the resolved configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" toml:"data_dir"`
	Local     LocalConfig     `mapstructure:"local" toml:"local"`
	Auth      AuthConfig      `mapstructure:"auth" toml:"auth"`
	Sync      SyncConfig      `mapstructure:"sync" toml:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard"`
	Migration MigrationConfig `mapstructure:"migration" toml:"migration"`
	Log       LogConfig       `mapstructure:"log" toml:"log"`
}

// LocalConfig configures the embedded store.
type LocalConfig struct {
	// Path of the database file. Empty means <data_dir>/sessions.db.
	Path string `mapstructure:"path" toml:"path"`
}

// AuthConfig locates the credentials written by the sign-in flow.
type AuthConfig struct {
	// CredentialsFile is empty for <data_dir>/credentials.json.
	CredentialsFile string `mapstructure:"credentials_file" toml:"credentials_file"`
}

// SyncConfig tunes the sync queue and connectivity probe.
type SyncConfig struct {
	QuietPeriod    time.Duration `mapstructure:"quiet_period" toml:"quiet_period"`
	BaseRetryDelay time.Duration `mapstructure:"base_retry_delay" toml:"base_retry_delay"`
	MaxRetries     int           `mapstructure:"max_retries" toml:"max_retries"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval" toml:"probe_interval"`
}

// DashboardConfig configures the status dashboard.
type DashboardConfig struct {
	// Port is 0 to disable the dashboard.
	Port int `mapstructure:"port" toml:"port"`
}

// MigrationConfig controls migration on first sign-in.
type MigrationConfig struct {
	// Auto migrates without asking when the daemon sees a sign-in.
	Auto bool `mapstructure:"auto" toml:"auto"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	// File is empty to log to stderr only.
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
}

// DefaultDataDir returns $XDG_DATA_HOME/sessionvault, falling back to
// ~/.local/share/sessionvault.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "sessionvault")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sessionvault"
	}
	return filepath.Join(home, ".local", "share", "sessionvault")
}

// DefaultConfigPath returns the config file looked up when --config is not
// given.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "sessionvault.toml"
	}
	return filepath.Join(dir, "sessionvault", "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Sync: SyncConfig{
			QuietPeriod:    time.Second,
			BaseRetryDelay: time.Second,
			MaxRetries:     3,
			ProbeInterval:  30 * time.Second,
		},
		Dashboard: DashboardConfig{Port: 0},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// NewViper returns a viper instance with defaults and environment binding
// applied. The CLI binds its flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("local.path", d.Local.Path)
	v.SetDefault("auth.credentials_file", d.Auth.CredentialsFile)
	v.SetDefault("sync.quiet_period", d.Sync.QuietPeriod)
	v.SetDefault("sync.base_retry_delay", d.Sync.BaseRetryDelay)
	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.probe_interval", d.Sync.ProbeInterval)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("migration.auto", d.Migration.Auto)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path into v and resolves the result. An
// empty path tries DefaultConfigPath and tolerates its absence; an explicit
// path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.Sync.QuietPeriod <= 0 {
		return fmt.Errorf("sync.quiet_period must be positive")
	}
	if c.Sync.BaseRetryDelay <= 0 {
		return fmt.Errorf("sync.base_retry_delay must be positive")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries cannot be negative")
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be positive")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}

// LocalPath returns the embedded database path.
func (c *Config) LocalPath() string {
	if c.Local.Path != "" {
		return c.Local.Path
	}
	return filepath.Join(c.DataDir, "sessions.db")
}

// CredentialsPath returns the credentials file path.
func (c *Config) CredentialsPath() string {
	if c.Auth.CredentialsFile != "" {
		return c.Auth.CredentialsFile
	}
	return filepath.Join(c.DataDir, "credentials.json")
}

// fileConfig mirrors Config with durations as strings, the form TOML and
// viper both read back.
type fileConfig struct {
	DataDir   string          `toml:"data_dir"`
	Local     LocalConfig     `toml:"local"`
	Auth      AuthConfig      `toml:"auth"`
	Sync      fileSyncConfig  `toml:"sync"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Migration MigrationConfig `toml:"migration"`
	Log       LogConfig       `toml:"log"`
}

type fileSyncConfig struct {
	QuietPeriod    string `toml:"quiet_period"`
	BaseRetryDelay string `toml:"base_retry_delay"`
	MaxRetries     int    `toml:"max_retries"`
	ProbeInterval  string `toml:"probe_interval"`
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	d := Default()
	fc := fileConfig{
		DataDir: d.DataDir,
		Local:   d.Local,
		Auth:    d.Auth,
		Sync: fileSyncConfig{
			QuietPeriod:    d.Sync.QuietPeriod.String(),
			BaseRetryDelay: d.Sync.BaseRetryDelay.String(),
			MaxRetries:     d.Sync.MaxRetries,
			ProbeInterval:  d.Sync.ProbeInterval.String(),
		},
		Dashboard: d.Dashboard,
		Migration: d.Migration,
		Log:       d.Log,
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644) // #nosec G302 - config is not secret
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(fc); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename config file: %w", err)
	}
	return nil
}
