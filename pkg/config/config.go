package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittoblock/internal/bytesize"
)

// Config represents the DittoBlock configuration.
//
// It captures the static configuration of the volume manager service:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Metrics server settings
//   - API server settings (port, JWT auth, timeouts)
//   - Engine settings (devices, chunk size, metadata store)
//   - Volume manager settings (reaper, watchdog, executor)
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOBLOCK_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the volume management API server configuration
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Engine configures the storage engine: attached devices, the chunk
	// allocation unit, and the metadata store directory
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`

	// VolMgr contains volume manager loop and executor configuration
	VolMgr VolMgrConfig `mapstructure:"volmgr" yaml:"volmgr"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// APIConfig configures the volume management HTTP API server.
type APIConfig struct {
	// Port is the HTTP port the API listens on
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// JWTSecret is the HMAC secret used to sign and verify API tokens.
	// Must be at least 32 bytes. Required to start the API server.
	// Override: DITTOBLOCK_API_JWT_SECRET
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`

	// TokenLifetime is the validity window of freshly minted tokens
	// Default: 1h
	TokenLifetime time.Duration `mapstructure:"token_lifetime" yaml:"token_lifetime"`

	// ReadTimeout is the HTTP server read timeout
	// Default: 30s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP server write timeout
	// Default: 30s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// EngineConfig configures the storage engine.
type EngineConfig struct {
	// Devices lists the storage devices the engine formats and manages.
	// At least one device is required to start the service.
	Devices []DeviceConfig `mapstructure:"devices" validate:"required,min=1,dive" yaml:"devices"`

	// ChunkSize is the allocation unit of the replication region.
	// Supports human-readable sizes: "32Mi", "64MB".
	// Default: 32Mi
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`

	// MetaDir is the directory for the metadata store (required).
	// Superblocks for the service and every volume persist here.
	MetaDir string `mapstructure:"meta_dir" validate:"required" yaml:"meta_dir"`
}

// DeviceConfig describes one attached storage device.
type DeviceConfig struct {
	// Path is the device node or backing file path
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// Type classifies the device: "auto", "hdd", or "nvme"
	// Default: "auto" (detect at startup)
	Type string `mapstructure:"type" validate:"omitempty,oneof=auto hdd nvme" yaml:"type,omitempty"`
}

// VolMgrConfig configures the volume manager background loops and executor.
type VolMgrConfig struct {
	// ReaperInterval is how often the reaper scans for volumes whose
	// destruction can be finalized
	// Default: 60s
	ReaperInterval time.Duration `mapstructure:"reaper_interval" yaml:"reaper_interval"`

	// WatchdogInterval is how often the shutdown watchdog re-checks
	// whether the service has drained
	// Default: 1s
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval" yaml:"watchdog_interval"`

	// ExecutorMode selects how lifecycle work is dispatched:
	// "immediate", "cpu", or "io"
	// Default: "io"
	ExecutorMode string `mapstructure:"executor_mode" validate:"omitempty,oneof=immediate cpu io" yaml:"executor_mode"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOBLOCK_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittoblock init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittoblock <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  dittoblock init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Restricted permissions: the file may carry the JWT secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DITTOBLOCK_ prefix with underscores.
	// Example: DITTOBLOCK_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOBLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittoblock/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
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

// applyEnvOverrides applies environment variables that viper's AutomaticEnv
// cannot bind because the key never appears in the config file.
// DITTOBLOCK_API_JWT_SECRET is the supported way to keep the secret out of
// the config file entirely.
func applyEnvOverrides(cfg *Config) {
	if secret := os.Getenv("DITTOBLOCK_API_JWT_SECRET"); secret != "" {
		cfg.API.JWTSecret = secret
	}
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use human-readable sizes like "32Mi" or "1GB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
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

// durationDecodeHook converts strings to time.Duration so config files can
// use human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoblock")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittoblock")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
