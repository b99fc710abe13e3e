package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"zbackup/internal/zb"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	logger zb.Logger
}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
// Entries that cannot be read while walking a directory are reported to logger and skipped.
func NewOSFilesystemManager(logger zb.Logger) *OSFilesystemManager {
	if logger == nil {
		logger = zb.NewNopLogger()
	}
	return &OSFilesystemManager{logger: logger}
}

// Resolve validates a raw path and returns a Path object.
// Symlinks given directly are followed.
func (m *OSFilesystemManager) Resolve(rawPath string) (*zb.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	if err := checkMode(absPath, info.Mode()); err != nil {
		return nil, err
	}
	return zb.NewPath(absPath, info.IsDir(), info), nil
}

func checkMode(path string, mode fs.FileMode) error {
	switch {
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("device files not supported: %s", path)
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("named pipes not supported: %s", path)
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("sockets not supported: %s", path)
	}
	return nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *zb.Path) (io.ReadCloser, error) {
	if path.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path.String())
	}
	return os.Open(path.String())
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path *zb.Path) (fs.FileInfo, error) {
	return os.Stat(path.String())
}

// FindFiles discovers regular files under the given directory, recursively.
// Symlinks inside the tree are not followed. Unreadable subdirectories are
// skipped with a warning; an unreadable root is an error.
func (m *OSFilesystemManager) FindFiles(path *zb.Path) ([]*zb.Path, error) {
	if !path.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", path.String())
	}

	var paths []*zb.Path
	err := filepath.WalkDir(path.String(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == path.String() {
				return err
			}
			m.logger.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		paths = append(paths, zb.NewPath(p, false, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return paths, nil
}

// EnsureDir creates a directory and its parents when missing.
func (m *OSFilesystemManager) EnsureDir(rawPath string) (*zb.Path, error) {
	if err := os.MkdirAll(rawPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	path, err := m.Resolve(rawPath)
	if err != nil {
		return nil, err
	}
	if !path.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", path.String())
	}
	return path, nil
}

// Compile-time check that OSFilesystemManager implements zb.FilesystemManager interface
var _ zb.FilesystemManager = (*OSFilesystemManager)(nil)

// Compile-time check that IgnoreMatcher implements zb.IgnoreMatcher interface
var _ zb.IgnoreMatcher = (*IgnoreMatcher)(nil)
