//go:build !linux && !darwin

package solo

import (
	"fmt"
	"os"
)

// deviceCapacity reports the usable byte capacity of a device path. Only
// regular files are supported on this platform.
func deviceCapacity(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat device %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("device %q: only file-backed devices are supported on this platform", path)
	}
	return uint64(info.Size()), nil
}
