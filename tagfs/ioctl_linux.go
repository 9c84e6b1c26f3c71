//go:build linux

package tagfs

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Wire-format structs for the tagfs kernel driver's ioctl contract
// (spec.md §6). Field order and widths are fixed C-ABI layout; sizes are
// asserted against unsafe.Sizeof in ioctl_linux_test.go the way
// other_examples' uffd_linux.go asserts its request structs.

const (
	ioctlMagic = 't' // synthesized: no kernel header shipped with this driver contract
	ioctlNopNr = 0x01
	ioctlMapNr = 0x02
)

// ioctlExtent mirrors logExtent's simple-extent shape for the wire request:
// an offset/length pair into the bound daxdev.
type ioctlExtent struct {
	Offset uint64
	Length uint64
}

// ioctlMapCreate is the MAP_CREATE request body: bind the open file
// descriptor's extents to a region of the primary daxdev.
type ioctlMapCreate struct {
	FileType  uint32
	ExtentType uint32
	Size      uint64
	NumExtents uint32
	_          uint32
	Extents    [MaxExtents]ioctlExtent
}

// nopIoctl number and mapCreateIoctl number follow the standard Linux
// _IOW/_IOWR encoding convention; synthesized here since no kernel header
// shipped with the retrieved source (see DESIGN.md).
func nopIoctlNr() uintptr {
	return iowNr(ioctlMagic, ioctlNopNr, 0)
}

func mapCreateIoctlNr() uintptr {
	return iowNr(ioctlMagic, ioctlMapNr, unsafe.Sizeof(ioctlMapCreate{}))
}

// iowNr reproduces the Linux _IOW macro: dir=write, well enough for our
// purposes since the driver only needs to disambiguate NOP from MAP_CREATE.
func iowNr(magic, nr byte, size uintptr) uintptr {
	const iocWrite = 1
	const sizeBits = 14
	const dirShift = 30
	const typeShift = 8
	const nrShift = 0
	const sizeShift = 16

	return (uintptr(iocWrite) << dirShift) |
		(uintptr(magic) << typeShift) |
		(uintptr(nr) << nrShift) |
		((size & (1<<sizeBits - 1)) << sizeShift)
}

func ioctlCall(fd uintptr, nr uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, nr, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Nop performs the ioctl membership test (spec.md §6): succeeds iff f is a
// file on a tagfs mount, with no side effect.
func Nop(f *os.File) error {
	if err := ioctlCall(f.Fd(), nopIoctlNr(), nil); err != nil {
		return errors.Wrapf(err, "tagfs NOP ioctl on %s", f.Name())
	}
	return nil
}

// MapCreate binds f's extents to the primary daxdev via the kernel driver's
// MAP_CREATE ioctl, per spec.md §6. kind says what the file aliases
// (regular file, superblock, or log); space is always ExtentSpaceFSDAX in
// this driver contract.
func MapCreate(f *os.File, kind FileKind, space ExtentSpace, size uint64, extents []Extent) error {
	if len(extents) == 0 {
		return errors.New("map create: at least one extent required")
	}
	if len(extents) > MaxExtents {
		return errors.Errorf("map create: %d extents exceeds max %d", len(extents), MaxExtents)
	}

	req := ioctlMapCreate{
		FileType:   uint32(kind),
		ExtentType: uint32(space),
		Size:       size,
		NumExtents: uint32(len(extents)),
	}
	for i, e := range extents {
		req.Extents[i] = ioctlExtent{Offset: e.Offset, Length: e.Length}
	}

	if err := ioctlCall(f.Fd(), mapCreateIoctlNr(), unsafe.Pointer(&req)); err != nil {
		return errors.Wrapf(err, "tagfs MAP_CREATE ioctl on %s", f.Name())
	}
	return nil
}
