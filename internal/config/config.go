package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/autodebug/autodebug/pkg/types"
)

// Config represents the complete configuration for autodebug
type Config struct {
	Logging  LoggingConfig  `json:"logging" yaml:"logging" toml:"logging"`
	IPC      IPCConfig      `json:"ipc" yaml:"ipc" toml:"ipc"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" toml:"metrics"`
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown" toml:"shutdown"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" toml:"format"` // json, text, auto
	Output string `json:"output" yaml:"output" toml:"output"` // stdout, stderr, file path
}

// IPCConfig contains IPC server configuration
type IPCConfig struct {
	// Enabled gates creation of the server. When false, serve exits without binding.
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
	// Context is hashed into the handle path. Empty means a random, per-run path.
	Context string `json:"context" yaml:"context" toml:"context"`
	// AppName is the prefix of the socket or pipe name.
	AppName string `json:"app_name" yaml:"app_name" toml:"app_name"`
	// EnvVar is the variable that publishes the handle path to child processes.
	EnvVar         string        `json:"env_var" yaml:"env_var" toml:"env_var"`
	ReadBufferSize int           `json:"read_buffer_size" yaml:"read_buffer_size" toml:"read_buffer_size"`
	BindTimeout    time.Duration `json:"bind_timeout" yaml:"bind_timeout" toml:"bind_timeout"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Address string `json:"address" yaml:"address" toml:"address"`
	Path    string `json:"path" yaml:"path" toml:"path"`
}

// ShutdownConfig contains graceful shutdown configuration
type ShutdownConfig struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

// applyDefaults fills zero-valued fields left unset by a partial config file
func applyDefaults(cfg *Config) {
	defaultLogging := DefaultLoggingConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = defaultLogging.Output
	}

	defaultIPC := DefaultIPCConfig()
	if cfg.IPC.AppName == "" {
		cfg.IPC.AppName = defaultIPC.AppName
	}
	if cfg.IPC.EnvVar == "" {
		cfg.IPC.EnvVar = defaultIPC.EnvVar
	}
	if cfg.IPC.ReadBufferSize == 0 {
		cfg.IPC.ReadBufferSize = defaultIPC.ReadBufferSize
	}
	if cfg.IPC.BindTimeout == 0 {
		cfg.IPC.BindTimeout = defaultIPC.BindTimeout
	}

	defaultMetrics := DefaultMetricsConfig()
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = defaultMetrics.Address
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetrics.Path
	}

	if cfg.Shutdown.Timeout == 0 {
		cfg.Shutdown.Timeout = DefaultShutdownConfig().Timeout
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// This is used by both Load() and the config reloader.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvLogOutput); v != "" {
		cfg.Logging.Output = v
	}

	if v := os.Getenv(EnvEnabled); v != "" {
		enabled, err := parseBool(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvEnabled, err)
		}
		cfg.IPC.Enabled = enabled
	}
	if v := os.Getenv(EnvContext); v != "" {
		cfg.IPC.Context = v
	}
	if v := os.Getenv(EnvAppName); v != "" {
		cfg.IPC.AppName = v
	}

	if v := os.Getenv(EnvMetricsEnabled); v != "" {
		enabled, err := parseBool(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvMetricsEnabled, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	if v := os.Getenv(EnvMetricsAddress); v != "" {
		cfg.Metrics.Address = v
	}

	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

// Default returns a configuration populated entirely from defaults
func Default() *Config {
	return &Config{
		Logging:  DefaultLoggingConfig(),
		IPC:      DefaultIPCConfig(),
		Metrics:  DefaultMetricsConfig(),
		Shutdown: DefaultShutdownConfig(),
	}
}

// Load builds the configuration. An explicit path must exist; with an empty
// path the default config file is used when present. Environment variables
// override file values, and the result is validated.
func Load(path string) (*Config, error) {
	var cfg *Config

	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if configPath, err := GetDefaultConfigPath(); err == nil {
		if _, err := os.Stat(configPath); err == nil {
			loaded, err := LoadFromFile(configPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to check config file: %w", err)
		}
	}

	if cfg == nil {
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for validity
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
		"auto": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid log format: %s (must be json, text, or auto)", c.Logging.Format))
	}

	if c.IPC.AppName == "" {
		return types.NewError(types.ErrCodeInvalidArgument, "ipc app name cannot be empty")
	}
	if strings.ContainsAny(c.IPC.AppName, `/\`) {
		return types.NewError(types.ErrCodeInvalidArgument, "ipc app name cannot contain path separators")
	}
	if c.IPC.EnvVar == "" || strings.ContainsAny(c.IPC.EnvVar, "= ") {
		return types.NewError(types.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid ipc env var name: %q", c.IPC.EnvVar))
	}
	if c.IPC.ReadBufferSize <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "ipc read buffer size must be positive")
	}
	if c.IPC.BindTimeout <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "ipc bind timeout must be positive")
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return types.NewError(types.ErrCodeInvalidArgument, "metrics address cannot be empty when metrics are enabled")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return types.NewError(types.ErrCodeInvalidArgument, "metrics path must start with /")
	}

	if c.Shutdown.Timeout <= 0 {
		return types.NewError(types.ErrCodeInvalidArgument, "shutdown timeout must be positive")
	}

	return nil
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Logging: %s, IPC: %s, Metrics: %s, Shutdown: %s}",
		c.Logging.String(),
		c.IPC.String(),
		c.Metrics.String(),
		c.Shutdown.String(),
	)
}

func (c LoggingConfig) String() string {
	return fmt.Sprintf("LoggingConfig{Level: %s, Format: %s, Output: %s}", c.Level, c.Format, c.Output)
}

func (c IPCConfig) String() string {
	return fmt.Sprintf("IPCConfig{Enabled: %v, Context: %q, AppName: %s, EnvVar: %s}",
		c.Enabled, c.Context, c.AppName, c.EnvVar)
}

func (c MetricsConfig) String() string {
	return fmt.Sprintf("MetricsConfig{Enabled: %v, Address: %s, Path: %s}", c.Enabled, c.Address, c.Path)
}

func (c ShutdownConfig) String() string {
	return fmt.Sprintf("ShutdownConfig{Timeout: %s}", c.Timeout)
}
