//go:build linux || darwin || freebsd

package fs

import (
	"fmt"

	"golang.org/x/sys/unix"

	"zbackup/internal/zb"
)

// DiskSpace reports free space using statfs(2).
type DiskSpace struct{}

// FreeBytes returns the bytes available to an unprivileged writer on the
// filesystem holding path.
func (DiskSpace) FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return uint64(st.Bavail) * uint64(blockSize(&st)), nil
}

var _ zb.SpaceOracle = DiskSpace{}
