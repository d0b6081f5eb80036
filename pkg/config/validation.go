package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for invalid or inconsistent values.
//
// Struct-tag rules cover ranges and enumerations; cross-field rules that
// tags cannot express are checked explicitly afterwards.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("invalid configuration: %s", describeFieldError(verrs[0]))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The JWT secret is optional at load time (commands that never start
	// the API do not need it) but when set it must be usable.
	if s := cfg.API.JWTSecret; s != "" && len(s) < 32 {
		return fmt.Errorf("invalid configuration: api.jwt_secret must be at least 32 bytes, got %d", len(s))
	}

	if cfg.Engine.ChunkSize == 0 {
		return fmt.Errorf("invalid configuration: engine.chunk_size must be greater than zero")
	}

	seen := make(map[string]struct{}, len(cfg.Engine.Devices))
	for _, d := range cfg.Engine.Devices {
		if _, dup := seen[d.Path]; dup {
			return fmt.Errorf("invalid configuration: duplicate device path %q", d.Path)
		}
		seen[d.Path] = struct{}{}
	}

	if cfg.VolMgr.ReaperInterval <= 0 {
		return fmt.Errorf("invalid configuration: volmgr.reaper_interval must be greater than zero")
	}
	if cfg.VolMgr.WatchdogInterval <= 0 {
		return fmt.Errorf("invalid configuration: volmgr.watchdog_interval must be greater than zero")
	}

	return nil
}

// describeFieldError renders a single validator error in config-file terms.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Namespace(), fe.Param(), fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Namespace(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Namespace(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Namespace(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
	}
}
