package config

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/autodebug/autodebug/pkg/types"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} and ${VAR_NAME:-default}
var envVarPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(:-([^}]*))?\}`)

// interpolateEnvVars replaces environment variable placeholders with their values
// Supports ${VAR_NAME} and ${VAR_NAME:-default_value} syntax
func interpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) >= 4 && parts[3] != "" {
			defaultValue = parts[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// fileFormat is the decoder selected by file extension
type fileFormat int

const (
	formatYAML fileFormat = iota
	formatTOML
)

// validateFilePath checks if the file path is valid and returns its format
func validateFilePath(path string) (fileFormat, error) {
	if path == "" {
		return 0, types.NewError(types.ErrCodeInvalidArgument, "configuration file path cannot be empty")
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	}
	return 0, types.NewError(types.ErrCodeInvalidArgument,
		"configuration file must have .yaml, .yml, or .toml extension, got: "+ext)
}

// decode parses data over cfg, so keys absent from the file keep their current values
func decode(format fileFormat, data []byte, path string, cfg *Config) error {
	switch format {
	case formatTOML:
		if err := toml.Unmarshal(data, cfg); err != nil {
			var decodeErr *toml.DecodeError
			if errors.As(err, &decodeErr) {
				row, col := decodeErr.Position()
				return types.WrapError(types.ErrCodeInvalid,
					"invalid TOML in "+path+" at "+strconv.Itoa(row)+":"+strconv.Itoa(col), err)
			}
			return types.WrapError(types.ErrCodeInvalid, "failed to parse TOML configuration from "+path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			var typeErr *yaml.TypeError
			if errors.As(err, &typeErr) {
				return types.WrapError(types.ErrCodeInvalid, "YAML type error in "+path, err)
			}
			return types.WrapError(types.ErrCodeInvalid, "invalid YAML syntax in "+path, err)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or TOML file
func LoadFromFile(path string) (*Config, error) {
	format, err := validateFilePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.WrapError(types.ErrCodeNotFound, "configuration file not found: "+path, err)
		}
		return nil, types.WrapError(types.ErrCodeInvalidArgument, "failed to read configuration file: "+path, err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, types.NewError(types.ErrCodeInvalid, "configuration file is empty: "+path)
	}

	cfg := Default()
	if err := decode(format, data, path, cfg); err != nil {
		return nil, err
	}

	interpolateEnvVarsInConfig(cfg)

	// Keys present but empty in the file fall back to defaults
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, types.WrapError(types.ErrCodeInvalid, "configuration validation failed for "+path, err)
	}

	return cfg, nil
}

// interpolateEnvVarsInConfig interpolates environment variables in all string fields
func interpolateEnvVarsInConfig(cfg *Config) {
	cfg.Logging.Level = interpolateEnvVars(cfg.Logging.Level)
	cfg.Logging.Format = interpolateEnvVars(cfg.Logging.Format)
	cfg.Logging.Output = interpolateEnvVars(cfg.Logging.Output)

	cfg.IPC.Context = interpolateEnvVars(cfg.IPC.Context)
	cfg.IPC.AppName = interpolateEnvVars(cfg.IPC.AppName)
	cfg.IPC.EnvVar = interpolateEnvVars(cfg.IPC.EnvVar)

	cfg.Metrics.Address = interpolateEnvVars(cfg.Metrics.Address)
	cfg.Metrics.Path = interpolateEnvVars(cfg.Metrics.Path)
}
