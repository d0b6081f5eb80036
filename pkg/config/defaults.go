package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittoblock/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Called after loading configuration from file and environment variables to
// fill in any missing values.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyAPIDefaults(&cfg.API)
	applyEngineDefaults(&cfg.Engine)
	applyVolMgrDefaults(&cfg.VolMgr)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAPIDefaults sets API server defaults.
// The API is always enabled (it is the only management surface).
func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.TokenLifetime == 0 {
		cfg.TokenLifetime = time.Hour
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	// JWTSecret has no default; it is required and set via config or
	// DITTOBLOCK_API_JWT_SECRET
}

// applyEngineDefaults sets storage engine defaults.
func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 32 * bytesize.MiB
	}
	for i := range cfg.Devices {
		if cfg.Devices[i].Type == "" {
			cfg.Devices[i].Type = "auto"
		}
	}
	// MetaDir has no default; superblock placement must be explicit
}

// applyVolMgrDefaults sets volume manager loop defaults.
func applyVolMgrDefaults(cfg *VolMgrConfig) {
	if cfg.ReaperInterval == 0 {
		cfg.ReaperInterval = 60 * time.Second
	}
	if cfg.WatchdogInterval == 0 {
		cfg.WatchdogInterval = time.Second
	}
	if cfg.ExecutorMode == "" {
		cfg.ExecutorMode = "io"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Engine: EngineConfig{
			Devices: []DeviceConfig{
				{Path: "/var/lib/dittoblock/device0.img", Type: "auto"},
			},
			MetaDir: "/var/lib/dittoblock/meta",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
