package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"zbackup/internal/zb"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file to the mock filesystem, creating parent directories.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addParents(path)
	m.files[path] = &MockFile{
		Permissions: 0755 | fs.ModeDir,
		ModTime:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		IsDirectory: true,
	}
}

// Remove deletes a file, simulating one that vanishes during a backup.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

func (m *MockFilesystemManager) addParents(path string) {
	for dir := filepath.Dir(path); dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			continue
		}
		m.files[dir] = &MockFile{Permissions: 0755 | fs.ModeDir, IsDirectory: true}
	}
}

func (m *MockFilesystemManager) lookup(path string) (*MockFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("file not found: %s: %w", path, fs.ErrNotExist)
	}
	return file, nil
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*zb.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	file, err := m.lookup(absPath)
	if err != nil {
		return nil, err
	}
	return zb.NewPath(absPath, file.IsDirectory, newMockFileInfo(absPath, file)), nil
}

func (m *MockFilesystemManager) FindFiles(dir *zb.Path) ([]*zb.Path, error) {
	if !dir.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := dir.String() + string(filepath.Separator)
	var found []*zb.Path
	for path, file := range m.files {
		if file.IsDirectory || !strings.HasPrefix(path, prefix) {
			continue
		}
		found = append(found, zb.NewPath(path, false, newMockFileInfo(path, file)))
	}
	slices.SortFunc(found, func(a, b *zb.Path) int { return strings.Compare(a.String(), b.String()) })
	return found, nil
}

func (m *MockFilesystemManager) Open(path *zb.Path) (io.ReadCloser, error) {
	file, err := m.lookup(path.String())
	if err != nil {
		return nil, err
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path *zb.Path) (fs.FileInfo, error) {
	file, err := m.lookup(path.String())
	if err != nil {
		return nil, err
	}
	return newMockFileInfo(path.String(), file), nil
}

// EnsureDir creates the directory in the mock when missing.
func (m *MockFilesystemManager) EnsureDir(rawPath string) (*zb.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	file, ok := m.files[absPath]
	if ok && !file.IsDirectory {
		m.mu.Unlock()
		return nil, fmt.Errorf("not a directory: %s", absPath)
	}
	m.mu.Unlock()
	if !ok {
		m.AddDirectory(absPath)
	}
	return m.Resolve(absPath)
}

func newMockFileInfo(path string, file *MockFile) *mockFileInfo {
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(file.Content)),
		mode:    file.Permissions,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ zb.FilesystemManager = (*MockFilesystemManager)(nil)
