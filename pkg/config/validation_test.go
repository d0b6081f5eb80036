package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validTestConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.API.JWTSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, Validate(validTestConfig()))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validTestConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validTestConfig()
	cfg.Logging.Format = "xml"

	assert.Error(t, Validate(cfg))
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := validTestConfig()
	cfg.API.Port = 70000

	assert.Error(t, Validate(cfg))
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	cfg := validTestConfig()
	cfg.API.JWTSecret = "too-short"

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestValidate_EmptySecretAllowed(t *testing.T) {
	// Commands that never start the API do not need the secret.
	cfg := validTestConfig()
	cfg.API.JWTSecret = ""

	assert.NoError(t, Validate(cfg))
}

func TestValidate_NoDevices(t *testing.T) {
	cfg := validTestConfig()
	cfg.Engine.Devices = nil

	assert.Error(t, Validate(cfg))
}

func TestValidate_DuplicateDevicePath(t *testing.T) {
	cfg := validTestConfig()
	cfg.Engine.Devices = []DeviceConfig{
		{Path: "/tmp/dev.img", Type: "auto"},
		{Path: "/tmp/dev.img", Type: "hdd"},
	}

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate device path")
}

func TestValidate_BadDeviceType(t *testing.T) {
	cfg := validTestConfig()
	cfg.Engine.Devices[0].Type = "floppy"

	assert.Error(t, Validate(cfg))
}

func TestValidate_MissingMetaDir(t *testing.T) {
	cfg := validTestConfig()
	cfg.Engine.MetaDir = ""

	assert.Error(t, Validate(cfg))
}

func TestValidate_BadExecutorMode(t *testing.T) {
	cfg := validTestConfig()
	cfg.VolMgr.ExecutorMode = "warp"

	assert.Error(t, Validate(cfg))
}

func TestValidate_NegativeReaperInterval(t *testing.T) {
	cfg := validTestConfig()
	cfg.VolMgr.ReaperInterval = -1

	assert.Error(t, Validate(cfg))
}
