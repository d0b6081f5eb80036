package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDevType(t *testing.T) {
	cases := []struct {
		in   string
		want DevType
	}{
		{"", DevTypeAutoDetect},
		{"auto", DevTypeAutoDetect},
		{"hdd", DevTypeHDD},
		{"HDD", DevTypeHDD},
		{"nvme", DevTypeNVME},
		{"ssd", DevTypeNVME},
	}
	for _, c := range cases {
		got, err := ParseDevType(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := ParseDevType("floppy")
	assert.Error(t, err)
}

func TestDevTypeStringRoundTrip(t *testing.T) {
	for _, dt := range []DevType{DevTypeHDD, DevTypeNVME} {
		parsed, err := ParseDevType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
	}
}

func TestDetectDeviceType(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(plain, nil, 0644))
	assert.Equal(t, DevTypeHDD, DetectDeviceType(plain))

	fast := filepath.Join(dir, "nvme0.img")
	require.NoError(t, os.WriteFile(fast, nil, 0644))
	assert.Equal(t, DevTypeNVME, DetectDeviceType(fast))

	assert.Equal(t, DevTypeUnsupported, DetectDeviceType(filepath.Join(dir, "missing")))
}
