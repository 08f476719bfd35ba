// Package config provides configuration management for the trading journal.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Admin    AdminConfig    `mapstructure:"admin"`
	UI       UIConfig       `mapstructure:"ui"`
	Dir      string         `mapstructure:"-"`
}

// DatabaseConfig holds SQLite storage configuration.
type DatabaseConfig struct {
	Path          string        `mapstructure:"path"`
	BusyTimeout   time.Duration `mapstructure:"busy_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second per client, 0 disables
	RateBurst      int           `mapstructure:"rate_burst"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	ReadOnlyMode     bool   `mapstructure:"read_only_mode"`
	AuditEnabled     bool   `mapstructure:"audit_enabled"`
	AuditDir         string `mapstructure:"audit_dir"`
	StrictValidation bool   `mapstructure:"strict_validation"`
}

// AdminConfig holds administrative maintenance configuration.
type AdminConfig struct {
	// RepairSchedule is a cron expression for the periodic balance repair
	// run by the API server. Empty disables it.
	RepairSchedule string `mapstructure:"repair_schedule"`
}

// UIConfig holds UI-related configuration. Timezone defines calendar days
// for the balance history and the monthly statistics.
type UIConfig struct {
	ColorEnabled       bool   `mapstructure:"color_enabled"`
	DateFormat         string `mapstructure:"date_format"`
	RecentTransactions int    `mapstructure:"recent_transactions"`
	Timezone           string `mapstructure:"timezone"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/nepse-journal"
	}
	return filepath.Join(home, ".config", "nepse-journal")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by the commented template and loading continues.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := loadDotEnv(configDir); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, configDir)
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir, "config"); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}
	cfg.Dir = configDir

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.Dir = configDir
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("database.path", filepath.Join(configDir, "journal.db"))
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.max_retries", 3)
	v.SetDefault("database.retry_interval", 50*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", true)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "journal.log"))
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("security.read_only_mode", false)
	v.SetDefault("security.audit_enabled", true)
	v.SetDefault("security.audit_dir", filepath.Join(configDir, "audit"))
	v.SetDefault("security.strict_validation", true)

	v.SetDefault("admin.repair_schedule", "")

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.recent_transactions", 10)
	v.SetDefault("ui.timezone", "Asia/Kathmandu")
}

func loadDotEnv(configDir string) error {
	err := godotenv.Load(filepath.Join(configDir, ".env"))
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JOURNAL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("JOURNAL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("JOURNAL_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("JOURNAL_READ_ONLY"); v != "" {
		if readOnly, err := strconv.ParseBool(v); err == nil {
			cfg.Security.ReadOnlyMode = readOnly
		}
	}
	if v := os.Getenv("JOURNAL_REPAIR_SCHEDULE"); v != "" {
		cfg.Admin.RepairSchedule = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.MaxRetries < 0 {
		return fmt.Errorf("database.max_retries must be non-negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error or disabled)", c.Log.Level)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}

	if c.Admin.RepairSchedule != "" {
		if _, err := cron.ParseStandard(c.Admin.RepairSchedule); err != nil {
			return fmt.Errorf("invalid admin.repair_schedule %q: %w", c.Admin.RepairSchedule, err)
		}
	}

	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must be non-negative")
	}

	if c.UI.RecentTransactions < 0 {
		return fmt.Errorf("ui.recent_transactions must be non-negative")
	}

	if _, err := time.LoadLocation(c.UI.Timezone); err != nil {
		return fmt.Errorf("invalid ui.timezone %q: %w", c.UI.Timezone, err)
	}

	return nil
}

// Location returns the configured time zone, or UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.UI.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
