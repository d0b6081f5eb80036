//go:build linux || darwin

package solo

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// deviceCapacity reports the usable byte capacity of a device path. Regular
// files report their size; directories report the free space of the backing
// filesystem.
func deviceCapacity(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat device %q: %w", path, err)
	}

	if info.Mode().IsRegular() {
		return uint64(info.Size()), nil
	}

	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs failed for %q: %w", path, err)
	}
	return uint64(st.Bsize) * st.Bavail, nil
}
