//go:build windows

package fs

import (
	"fmt"

	"golang.org/x/sys/windows"

	"zbackup/internal/zb"
)

// DiskSpace reports free space using GetDiskFreeSpaceEx.
type DiskSpace struct{}

// FreeBytes returns the bytes available to the calling user on the volume
// holding path.
func (DiskSpace) FreeBytes(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, fmt.Errorf("encoding path %s: %w", path, err)
	}
	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &available, &total, &free); err != nil {
		return 0, fmt.Errorf("GetDiskFreeSpaceEx %s: %w", path, err)
	}
	return available, nil
}

var _ zb.SpaceOracle = DiskSpace{}
