//go:build !linux && !darwin && !freebsd && !windows

package fs

import (
	"fmt"
	"runtime"

	"zbackup/internal/zb"
)

// DiskSpace is unavailable on this platform.
type DiskSpace struct{}

func (DiskSpace) FreeBytes(path string) (uint64, error) {
	return 0, fmt.Errorf("free space query not supported on %s", runtime.GOOS)
}

var _ zb.SpaceOracle = DiskSpace{}
