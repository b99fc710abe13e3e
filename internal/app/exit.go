package app

import (
	"errors"

	"zbackup/internal/zb"
)

// ErrConfig marks a configuration that could not be loaded.
var ErrConfig = errors.New("configuration error")

// Process exit codes.
const (
	ExitOK      = 0
	ExitConfig  = 1
	ExitSpace   = 2
	ExitProfile = 3
	ExitFailure = 4
)

// ExitCode maps the outcome of a command onto the process exit code.
// Having nothing to back up is not a failure.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, zb.ErrNothingToBackup):
		return ExitOK
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, zb.ErrInsufficientSpace):
		return ExitSpace
	case errors.Is(err, zb.ErrProfile):
		return ExitProfile
	default:
		return ExitFailure
	}
}
