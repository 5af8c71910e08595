//go:build linux

package mounted

import (
	"golang.org/x/sys/unix"
)

// statfs reports a mount's capacity and free space. Mocked out for unit
// testing.
var statfs = func(path string) (capacity, free uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	blockSize := uint64(stat.Bsize)
	return stat.Blocks * blockSize, stat.Bavail * blockSize, nil
}
