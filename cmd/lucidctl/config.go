package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Topology TopologyConfig `mapstructure:"topology"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Database DatabaseConfig `mapstructure:"database"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`

	// Values are deployment-wide plain values referenced from service
	// environments as ${NAME}.
	Values map[string]string `mapstructure:"values"`
}

// TopologyConfig locates the deployment description.
type TopologyConfig struct {
	Path string `mapstructure:"path"`
}

// DockerConfig holds container runtime configuration.
type DockerConfig struct {
	// Host is the Docker endpoint. An ssh://user@host[:port] URL deploys
	// to a remote engine; deployment directories are then created on that
	// host over the same SSH channel.
	Host string `mapstructure:"host"`

	// SSHKey is the private key file used for ssh:// hosts.
	SSHKey string `mapstructure:"ssh_key"`
}

// DatabaseConfig holds the revision log location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// MonitorConfig holds health monitor tuning.
type MonitorConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxWait       time.Duration `mapstructure:"max_wait"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// SecretsConfig selects where secret:// references resolve from.
type SecretsConfig struct {
	// Source is "env" (LUCID_SECRET_* variables) or "file".
	Source string `mapstructure:"source"`

	// Path is the encrypted secrets file, used when Source is "file".
	Path string `mapstructure:"path"`

	// PassphraseEnv names the environment variable holding the master
	// passphrase for the file store. The passphrase itself never appears
	// in config files or logs.
	PassphraseEnv string `mapstructure:"passphrase_env"`
}

// ServerConfig holds the optional status server configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("topology.path", "lucid.yaml")
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.ssh_key", "")
	v.SetDefault("database.path", "./data/revisions.db")
	v.SetDefault("monitor.poll_interval", "5s")
	v.SetDefault("monitor.max_wait", "3m")
	v.SetDefault("monitor.max_concurrent", 8)
	v.SetDefault("secrets.source", "env")
	v.SetDefault("secrets.path", "")
	v.SetDefault("secrets.passphrase_env", "LUCID_SECRETS_PASSPHRASE")
	v.SetDefault("server.addr", "127.0.0.1:7420")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if the file exists but cannot be parsed;
			// a missing file falls back to defaults.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("LUCID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config, verbose bool) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
