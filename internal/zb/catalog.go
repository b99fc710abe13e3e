package zb

import "context"

// Catalog lists and removes the archives stored at a destination.
type Catalog interface {
	// List returns the archives found at destination, in no particular
	// time order. Entries whose name does not follow the archive naming
	// convention are skipped without error.
	List(ctx context.Context, destination string) ([]*Archive, error)

	// Remove deletes a single archive.
	Remove(ctx context.Context, archive *Archive) error

	// Size returns the on-disk size of an archive.
	Size(ctx context.Context, archive *Archive) (int64, error)
}

// SpaceOracle reports free space on the filesystem holding a path.
// Results must never be cached: every call re-queries the filesystem.
type SpaceOracle interface {
	FreeBytes(path string) (uint64, error)
}
