package tagfs

import "errors"

// Error kinds, per spec.md §7. Checked with errors.Is; wrapped with %w at
// call sites via github.com/pkg/errors where additional context helps.
var (
	ErrNotTagfs          = errors.New("tagfs: path is not in a tagfs mount")
	ErrLogFull           = errors.New("tagfs: log is full")
	ErrInvalidPath       = errors.New("tagfs: invalid path")
	ErrInvalidSuperblock = errors.New("tagfs: invalid superblock")
	ErrAllocationFailed  = errors.New("tagfs: allocation failed, no space")
	ErrAlreadyExists     = errors.New("tagfs: already exists")
	ErrDeviceBusy        = errors.New("tagfs: device is busy (mounted)")
	ErrIO                = errors.New("tagfs: i/o error")
	ErrNotSupported      = errors.New("tagfs: not supported on this platform")
)
