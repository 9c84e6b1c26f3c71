//go:build !linux

package tagfs

import "os"

// Nop and MapCreate require the tagfs kernel driver, which is Linux-only.
func Nop(f *os.File) error {
	return ErrNotSupported
}

func MapCreate(f *os.File, kind FileKind, space ExtentSpace, size uint64, extents []Extent) error {
	return ErrNotSupported
}
