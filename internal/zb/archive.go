package zb

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// archiveNamePattern matches "<YYYY>-<Mon>-<DD> <HH>-<MM>-<ffffff>.<ext>".
// The fraction is the microsecond part of the second; the seconds
// themselves are not encoded.
var archiveNamePattern = regexp.MustCompile(`^(\d{4}-[A-Za-z]{3}-\d{2} \d{2}-\d{2})-(\d{6})\.([A-Za-z0-9.]+)$`)

const archiveTimeLayout = "2006-Jan-02 15-04"

// PendingWriteOverhead is added to the summed input size to absorb tar
// headers, compression framing and encryption headers.
const PendingWriteOverhead int64 = 10 * 1024 * 1024

// Archive is one previously produced compressed file at a destination.
type Archive struct {
	Path      string    // absolute path, unique within the destination
	Name      string    // basename, follows the archive naming convention
	CreatedAt time.Time // parsed from Name

	size      int64
	sizeKnown bool
}

// NewArchive creates an Archive whose size has not been resolved yet.
func NewArchive(path, name string, createdAt time.Time) *Archive {
	return &Archive{Path: path, Name: name, CreatedAt: createdAt}
}

// Size returns the cached size and whether it has been resolved.
func (a *Archive) Size() (int64, bool) {
	return a.size, a.sizeKnown
}

// SetSize caches the on-disk size of the archive.
func (a *Archive) SetSize(size int64) {
	a.size = size
	a.sizeKnown = true
}

// Age returns how old the archive is relative to now.
func (a *Archive) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}

func (a *Archive) String() string {
	return a.Name
}

// ArchiveName formats the file name of an archive created at t.
// ext is the extension without the leading dot (e.g. "zstd" or "zstd.age").
func ArchiveName(t time.Time, ext string) string {
	micros := t.Nanosecond() / int(time.Microsecond)
	return fmt.Sprintf("%s-%06d.%s", t.Format(archiveTimeLayout), micros, ext)
}

// ParseArchiveName extracts the creation time encoded in an archive name.
// Names that do not follow the convention return an error; callers treat
// that as "not an archive" rather than a failure.
func ParseArchiveName(name string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	m := archiveNamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("not an archive name: %q", name)
	}

	t, err := time.ParseInLocation(archiveTimeLayout, m[1], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing archive time %q: %w", m[1], err)
	}

	micros, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing archive fraction %q: %w", m[2], err)
	}

	return t.Add(time.Duration(micros) * time.Microsecond), nil
}

// IsArchiveName reports whether name follows the archive naming convention.
func IsArchiveName(name string) bool {
	_, err := ParseArchiveName(name, time.UTC)
	return err == nil
}

// PendingWrite describes the archive about to be created.
type PendingWrite struct {
	EstimatedSize int64
}

// NewPendingWrite estimates the space needed to store inputBytes of source data.
func NewPendingWrite(inputBytes int64) PendingWrite {
	if inputBytes < 0 {
		inputBytes = 0
	}
	return PendingWrite{EstimatedSize: inputBytes + PendingWriteOverhead}
}
