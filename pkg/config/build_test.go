package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoblock/internal/bytesize"
	"github.com/marmos91/dittoblock/pkg/engine"
	"github.com/marmos91/dittoblock/pkg/volmgr"
)

func TestEngineConfig_ParsesDeviceTypes(t *testing.T) {
	cfg := validTestConfig()
	cfg.Engine.ChunkSize = 64 * bytesize.MiB
	cfg.Engine.Devices = []DeviceConfig{
		{Path: "/dev/nvme0n1", Type: "nvme"},
		{Path: "/tmp/slow.img", Type: "hdd"},
		{Path: "/tmp/auto.img", Type: "auto"},
	}

	eng, err := cfg.EngineConfig()
	require.NoError(t, err)

	assert.Equal(t, uint64(64*bytesize.MiB), eng.ChunkSize)
	require.Len(t, eng.Devices, 3)
	assert.Equal(t, engine.DevTypeNVME, eng.Devices[0].Type)
	assert.Equal(t, engine.DevTypeHDD, eng.Devices[1].Type)
	assert.Equal(t, engine.DevTypeAutoDetect, eng.Devices[2].Type)
}

func TestEngineConfig_RejectsUnknownType(t *testing.T) {
	cfg := validTestConfig()
	cfg.Engine.Devices = []DeviceConfig{{Path: "/tmp/dev.img", Type: "tape"}}

	_, err := cfg.EngineConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "/tmp/dev.img")
}

func TestManagerConfig(t *testing.T) {
	cfg := validTestConfig()
	cfg.VolMgr.ReaperInterval = 5 * time.Second
	cfg.VolMgr.ExecutorMode = "immediate"

	mc, err := cfg.ManagerConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, mc.ReaperInterval)
	assert.Equal(t, volmgr.ExecImmediate, mc.ExecutorMode)
}

func TestServerConfig_CarriesShutdownTimeout(t *testing.T) {
	cfg := validTestConfig()
	cfg.ShutdownTimeout = 42 * time.Second

	sc := cfg.ServerConfig()
	assert.Equal(t, 42*time.Second, sc.ShutdownTimeout)
	assert.Equal(t, cfg.API.JWTSecret, sc.JWTSecret)
}
