package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DevType is the coarse device classification used to size storage regions.
type DevType int

const (
	// DevTypeAutoDetect defers classification to DetectDeviceType.
	DevTypeAutoDetect DevType = iota
	DevTypeHDD
	DevTypeNVME
	DevTypeUnsupported
)

// String returns the config-facing name of the device type.
func (t DevType) String() string {
	switch t {
	case DevTypeAutoDetect:
		return "auto"
	case DevTypeHDD:
		return "hdd"
	case DevTypeNVME:
		return "nvme"
	default:
		return "unsupported"
	}
}

// ParseDevType parses a config-facing device type name.
func ParseDevType(s string) (DevType, error) {
	switch strings.ToLower(s) {
	case "", "auto", "auto_detect":
		return DevTypeAutoDetect, nil
	case "hdd", "data":
		return DevTypeHDD, nil
	case "nvme", "ssd", "fast":
		return DevTypeNVME, nil
	default:
		return DevTypeUnsupported, fmt.Errorf("unknown device type %q", s)
	}
}

// Device is one attached storage device: a block device node or a regular
// file backing an engine region.
type Device struct {
	Path string
	Type DevType
}

// DetectDeviceType classifies a device by its path. Block devices and files
// whose name carries an nvme/ssd hint classify as NVME; other resolvable
// paths classify as HDD; paths that do not exist are unsupported.
func DetectDeviceType(path string) DevType {
	info, err := os.Stat(path)
	if err != nil {
		return DevTypeUnsupported
	}

	base := strings.ToLower(filepath.Base(path))
	if strings.Contains(base, "nvme") || strings.Contains(base, "ssd") {
		return DevTypeNVME
	}

	if info.Mode().IsRegular() || info.Mode()&os.ModeDevice != 0 || info.IsDir() {
		return DevTypeHDD
	}
	return DevTypeUnsupported
}
