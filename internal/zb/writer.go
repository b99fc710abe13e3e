package zb

import "context"

// ArchiveWriter produces a single compressed archive from a set of files.
type ArchiveWriter interface {
	// Extension is the file extension of produced archives, without the dot.
	Extension() string

	// Write streams files into a new archive at target and returns the
	// number of bytes written. Nothing matching the archive naming
	// convention is left behind when Write fails.
	Write(ctx context.Context, files []*Path, target string) (int64, error)
}

// Uploader copies a finished archive somewhere off the destination volume.
type Uploader interface {
	Upload(ctx context.Context, archive *Archive) error
}
