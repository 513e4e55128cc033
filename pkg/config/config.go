// Package config loads and validates the EclipseFS configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (ECLIPSEFS_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/eclipse-os/eclipsefs/internal/bytesize"
)

// Config captures the static configuration of an EclipseFS volume and
// the tooling around it.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Engine configures the storage engine geometry and write path
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`

	// Cache configures the in-memory node cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Encryption configures the per-path encryption layer
	Encryption EncryptionConfig `mapstructure:"encryption" yaml:"encryption"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// EngineConfig configures the storage engine.
type EngineConfig struct {
	// BlockSize is the data block size.
	// Supports human-readable formats: "4KB", "64KB"
	// Default: 4KB
	BlockSize bytesize.ByteSize `mapstructure:"block_size" yaml:"block_size"`

	// TotalBlocks caps the data region of a freshly formatted volume.
	// Default: 16384
	TotalBlocks uint64 `mapstructure:"total_blocks" validate:"omitempty,gt=0" yaml:"total_blocks"`

	// Compression enables transparent lz4 compression of block payloads.
	// Default: true
	Compression bool `mapstructure:"compression" yaml:"compression"`
}

// CacheConfig configures the in-memory node cache.
type CacheConfig struct {
	// Strategy selects the eviction policy.
	// Valid values: lru, arc
	// Default: lru
	Strategy string `mapstructure:"strategy" validate:"omitempty,oneof=lru arc" yaml:"strategy"`

	// Capacity is the maximum number of cached nodes.
	// Default: 1024
	Capacity int `mapstructure:"capacity" validate:"omitempty,gt=0" yaml:"capacity"`
}

// EncryptionConfig configures the per-path encryption layer.
type EncryptionConfig struct {
	// DefaultAlgorithm encrypts paths no policy covers.
	// Valid values: none, aes-256-gcm, xchacha20-poly1305
	// Default: none
	DefaultAlgorithm string `mapstructure:"default_algorithm" validate:"omitempty,oneof=none aes-256-gcm xchacha20-poly1305" yaml:"default_algorithm"`

	// RotationThreshold is the per-key operation count before rotation.
	// Default: 1000000
	RotationThreshold uint64 `mapstructure:"rotation_threshold" yaml:"rotation_threshold"`

	// Policies bind path prefixes to algorithms.
	Policies []PolicyConfig `mapstructure:"policies" validate:"omitempty,dive" yaml:"policies,omitempty"`
}

// PolicyConfig is one path-prefix encryption policy.
type PolicyConfig struct {
	// Path is the absolute path prefix the policy covers.
	Path string `mapstructure:"path" validate:"required,startswith=/" yaml:"path"`

	// Algorithm seals content under the prefix.
	Algorithm string `mapstructure:"algorithm" validate:"required,oneof=aes-256-gcm xchacha20-poly1305" yaml:"algorithm"`
}

// MetricsConfig configures Prometheus metrics collection.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
// configPath empty uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the given path in YAML form.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns the default config file location:
// $XDG_CONFIG_HOME/eclipsefs/config.yaml.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "eclipsefs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/eclipsefs"
	}
	return filepath.Join(home, ".config", "eclipsefs")
}

// setupViper configures environment variable support and the config
// file search path. Environment variables use the ECLIPSEFS_ prefix,
// e.g. ECLIPSEFS_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("ECLIPSEFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is not an error; defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to
// bytesize.ByteSize, so config files can say "4KB" or a plain number.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
