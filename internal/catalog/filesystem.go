package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zbackup/internal/zb"
)

// FileSystemCatalog lists archives stored as plain files in a destination
// directory:
//
//	<destination>/
//	  2024-Mar-05 13-45-123456.zstd
//	  2024-Mar-06 13-45-654321.zstd.age
//	  .tmp-1234     (ignored, in-progress write)
//	  notes.txt     (ignored, does not follow the naming convention)
type FileSystemCatalog struct {
	loc *time.Location
}

// NewFileSystemCatalog creates a catalog that interprets archive timestamps
// in loc. A nil loc means local time.
func NewFileSystemCatalog(loc *time.Location) *FileSystemCatalog {
	if loc == nil {
		loc = time.Local
	}
	return &FileSystemCatalog{loc: loc}
}

// List scans destination. Subdirectories and files not following the
// archive naming convention are skipped.
func (c *FileSystemCatalog) List(ctx context.Context, destination string) ([]*zb.Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(destination)
	if err != nil {
		return nil, fmt.Errorf("reading destination: %w", err)
	}

	var archives []*zb.Archive
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		createdAt, err := zb.ParseArchiveName(entry.Name(), c.loc)
		if err != nil {
			continue
		}
		archives = append(archives, zb.NewArchive(filepath.Join(destination, entry.Name()), entry.Name(), createdAt))
	}
	return archives, nil
}

// Remove deletes the archive file.
func (c *FileSystemCatalog) Remove(ctx context.Context, archive *zb.Archive) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(archive.Path); err != nil {
		return fmt.Errorf("removing %s: %w", archive.Name, err)
	}
	return nil
}

// Size stats the archive once and caches the result on it.
func (c *FileSystemCatalog) Size(_ context.Context, archive *zb.Archive) (int64, error) {
	if size, ok := archive.Size(); ok {
		return size, nil
	}
	info, err := os.Stat(archive.Path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", archive.Name, err)
	}
	archive.SetSize(info.Size())
	return info.Size(), nil
}

// Compile-time check that FileSystemCatalog implements zb.Catalog interface
var _ zb.Catalog = (*FileSystemCatalog)(nil)
