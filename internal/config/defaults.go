package config

import (
	"os"
	"path/filepath"
	"time"
)

// testConfigPath is an override for the default config path used in testing
// If set, GetDefaultConfigPath will return this value instead of the standard path
var testConfigPath string

// SetTestConfigPath sets a custom config path for testing purposes
// This should only be called from tests
func SetTestConfigPath(path string) {
	testConfigPath = path
}

// GetConfigDir returns the autodebug configuration directory
// Uses ~/.config/autodebug/ on Unix systems
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "autodebug"), nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() (string, error) {
	if testConfigPath != "" {
		return testConfigPath, nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

const (
	// Environment variable names
	EnvEnabled        = "AUTODEBUG_ENABLED"
	EnvContext        = "AUTODEBUG_CONTEXT"
	EnvAppName        = "AUTODEBUG_APP_NAME"
	EnvLogLevel       = "AUTODEBUG_LOG_LEVEL"
	EnvLogFormat      = "AUTODEBUG_LOG_FORMAT"
	EnvLogOutput      = "AUTODEBUG_LOG_OUTPUT"
	EnvMetricsEnabled = "AUTODEBUG_METRICS_ENABLED"
	EnvMetricsAddress = "AUTODEBUG_METRICS_ADDRESS"
)

const (
	// Default Logging settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "auto"
	DefaultLogOutput = "stderr"

	// Default IPC settings
	DefaultAppName        = "autodebug"
	DefaultHandleEnvVar   = "AUTODEBUG_IPC_HANDLE"
	DefaultReadBufferSize = 4096
	DefaultBindTimeout    = 5 * time.Second

	// Default Metrics settings
	DefaultMetricsEnabled = false
	DefaultMetricsAddress = "127.0.0.1:9464"
	DefaultMetricsPath    = "/metrics"

	// Default Shutdown settings
	DefaultShutdownTimeout = 10 * time.Second
)

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  DefaultLogLevel,
		Format: DefaultLogFormat,
		Output: DefaultLogOutput,
	}
}

// DefaultIPCConfig returns the default IPC configuration
func DefaultIPCConfig() IPCConfig {
	return IPCConfig{
		Enabled:        true,
		Context:        "",
		AppName:        DefaultAppName,
		EnvVar:         DefaultHandleEnvVar,
		ReadBufferSize: DefaultReadBufferSize,
		BindTimeout:    DefaultBindTimeout,
	}
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: DefaultMetricsEnabled,
		Address: DefaultMetricsAddress,
		Path:    DefaultMetricsPath,
	}
}

// DefaultShutdownConfig returns the default shutdown configuration
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: DefaultShutdownTimeout,
	}
}
