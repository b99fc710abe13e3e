package zb

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	// ErrInsufficientSpace is matched by *InsufficientSpaceError.
	ErrInsufficientSpace = errors.New("insufficient space")

	// ErrNothingToBackup is returned when the selected inputs add up to zero bytes.
	ErrNothingToBackup = errors.New("nothing to back up")

	// ErrProfile wraps failures while building the backup profile.
	ErrProfile = errors.New("building backup profile")
)

// InsufficientSpaceError reports that the pending write does not fit on the
// destination even after every deletion the policy permits.
type InsufficientSpaceError struct {
	Destination string
	Required    int64
	Free        uint64
}

// Missing returns the number of bytes still lacking.
func (e *InsufficientSpaceError) Missing() int64 {
	if uint64(e.Required) <= e.Free {
		return 0
	}
	return e.Required - int64(e.Free)
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space on %s: need %s, free %s, missing %s",
		e.Destination,
		humanize.IBytes(uint64(e.Required)),
		humanize.IBytes(e.Free),
		humanize.IBytes(uint64(e.Missing())))
}

func (e *InsufficientSpaceError) Is(target error) bool {
	return target == ErrInsufficientSpace
}
