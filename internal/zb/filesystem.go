package zb

import (
	"io"
	"io/fs"
)

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates an absolute path and returns a Path object.
	// Symlinks, devices, pipes and sockets are rejected.
	Resolve(rawPath string) (*Path, error)

	// FindFiles returns every regular file below a directory, recursively.
	FindFiles(dir *Path) ([]*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	// Unlike path.Info() which returns cached info from when the path was resolved,
	// this always fetches current info from the filesystem.
	Stat(path *Path) (fs.FileInfo, error)

	// EnsureDir creates a directory and its parents when missing.
	EnsureDir(rawPath string) (*Path, error)
}

// IgnoreMatcher decides whether an absolute path is excluded from backups.
type IgnoreMatcher interface {
	Match(absPath string) bool
}

// noIgnore matches nothing.
type noIgnore struct{}

func (noIgnore) Match(string) bool { return false }
