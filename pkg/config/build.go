package config

import (
	"fmt"

	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/internal/telemetry"
	"github.com/marmos91/dittoblock/pkg/engine"
	"github.com/marmos91/dittoblock/pkg/engine/solo"
	"github.com/marmos91/dittoblock/pkg/volmgr"
	"github.com/marmos91/dittoblock/pkg/volmgr/api"
)

// LoggerConfig converts the logging section into the logger package config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// TelemetryConfig converts the telemetry section into the telemetry package
// config for the given service identity.
func (c *Config) TelemetryConfig(serviceName, serviceVersion string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// EngineConfig converts the engine section into the solo engine config.
// Device types are parsed here so a typo fails startup rather than being
// silently treated as auto-detect.
func (c *Config) EngineConfig() (solo.Config, error) {
	devs := make([]engine.Device, 0, len(c.Engine.Devices))
	for _, d := range c.Engine.Devices {
		t, err := engine.ParseDevType(d.Type)
		if err != nil {
			return solo.Config{}, fmt.Errorf("device %q: %w", d.Path, err)
		}
		devs = append(devs, engine.Device{Path: d.Path, Type: t})
	}

	return solo.Config{
		Devices:   devs,
		ChunkSize: uint64(c.Engine.ChunkSize),
	}, nil
}

// ManagerConfig converts the volmgr section into the volume manager config.
func (c *Config) ManagerConfig() (volmgr.Config, error) {
	mode, err := volmgr.ParseExecMode(c.VolMgr.ExecutorMode)
	if err != nil {
		return volmgr.Config{}, err
	}

	return volmgr.Config{
		ReaperInterval:   c.VolMgr.ReaperInterval,
		WatchdogInterval: c.VolMgr.WatchdogInterval,
		ExecutorMode:     mode,
	}, nil
}

// ServerConfig converts the api section into the API server config.
func (c *Config) ServerConfig() api.ServerConfig {
	return api.ServerConfig{
		Port:            c.API.Port,
		JWTSecret:       c.API.JWTSecret,
		TokenLifetime:   c.API.TokenLifetime,
		ReadTimeout:     c.API.ReadTimeout,
		WriteTimeout:    c.API.WriteTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}
