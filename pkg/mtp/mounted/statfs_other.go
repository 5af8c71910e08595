//go:build !linux

package mounted

// statfs reports a mount's capacity and free space. Capacity reporting is
// only wired up on Linux, where gvfs runs.
var statfs = func(path string) (capacity, free uint64, err error) {
	return 0, 0, nil
}
