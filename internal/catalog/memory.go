package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"zbackup/internal/zb"
)

// MemoryVolume is an in-memory destination volume. It implements both
// zb.Catalog and zb.SpaceOracle: removing an archive frees its bytes.
// It backs tests and dry runs. This implementation is safe for concurrent use.
type MemoryVolume struct {
	free     uint64
	files    map[string]map[string]int64 // destination -> name -> size
	failures map[string]error            // name -> error returned by Remove
	removed  []string
	mu       sync.RWMutex
}

// NewMemoryVolume creates an empty volume with free bytes available.
func NewMemoryVolume(free uint64) *MemoryVolume {
	return &MemoryVolume{
		free:     free,
		files:    make(map[string]map[string]int64),
		failures: make(map[string]error),
	}
}

// AddFile places a file of the given size at destination. Any name is
// accepted; names not following the archive convention are invisible to List.
// Adding a file does not consume free space.
func (m *MemoryVolume) AddFile(destination, name string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir, ok := m.files[destination]
	if !ok {
		dir = make(map[string]int64)
		m.files[destination] = dir
	}
	dir[name] = size
}

// SetFree overrides the free space reported by the volume.
func (m *MemoryVolume) SetFree(free uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free = free
}

// FailRemove makes every Remove of the named archive return err.
func (m *MemoryVolume) FailRemove(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[name] = err
}

// Names returns the sorted names of every file at destination.
func (m *MemoryVolume) Names(destination string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.files[destination] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Removed returns the names of removed archives in removal order.
func (m *MemoryVolume) Removed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.removed)
}

// List returns the archives at destination in lexical name order, the same
// order a directory scan produces.
func (m *MemoryVolume) List(ctx context.Context, destination string) ([]*zb.Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var archives []*zb.Archive
	for _, name := range m.Names(destination) {
		createdAt, err := zb.ParseArchiveName(name, nil)
		if err != nil {
			continue
		}
		archives = append(archives, zb.NewArchive(filepath.Join(destination, name), name, createdAt))
	}
	return archives, nil
}

// Remove deletes the archive and returns its bytes to the free pool.
func (m *MemoryVolume) Remove(ctx context.Context, archive *zb.Archive) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[archive.Name]; err != nil {
		return err
	}

	dir := m.files[filepath.Dir(archive.Path)]
	size, ok := dir[archive.Name]
	if !ok {
		return fmt.Errorf("archive not found: %s", archive.Name)
	}
	delete(dir, archive.Name)
	m.free += uint64(size)
	m.removed = append(m.removed, archive.Name)
	return nil
}

// Size returns the size of the archive.
func (m *MemoryVolume) Size(_ context.Context, archive *zb.Archive) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size, ok := m.files[filepath.Dir(archive.Path)][archive.Name]
	if !ok {
		return 0, fmt.Errorf("archive not found: %s", archive.Name)
	}
	archive.SetSize(size)
	return size, nil
}

// FreeBytes returns the free space of the volume, regardless of path.
func (m *MemoryVolume) FreeBytes(string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.free, nil
}

// Snapshot copies the archives found at destination, with their sizes, and
// the free space of the destination into a new MemoryVolume. Running the
// eviction engine against the snapshot reports what a real run would delete
// without touching the destination.
func Snapshot(ctx context.Context, src zb.Catalog, space zb.SpaceOracle, destination string) (*MemoryVolume, error) {
	free, err := space.FreeBytes(destination)
	if err != nil {
		return nil, fmt.Errorf("querying free space: %w", err)
	}

	archives, err := src.List(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}

	vol := NewMemoryVolume(free)
	for _, a := range archives {
		size, err := src.Size(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("resolving size of %s: %w", a.Name, err)
		}
		vol.AddFile(destination, a.Name, size)
	}
	return vol, nil
}

// Compile-time checks that MemoryVolume implements the zb interfaces
var (
	_ zb.Catalog     = (*MemoryVolume)(nil)
	_ zb.SpaceOracle = (*MemoryVolume)(nil)
)
