package tagfs

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CreateFile runs the full file-creation sequence spec.md §4.7 describes:
// rebuild the bitmap from log, allocate size bytes worth of contiguous
// space, append a FILE log entry recording the allocation, then
// materialize the file under mountPoint and bind it to its extents via
// MAP_CREATE.
//
// Per spec.md §5, callers must hold an external mutex across this whole
// call — the alloc-then-log sequence is not safe for concurrent callers,
// and a concurrent Nop/MAP_CREATE on the same relpath from another process
// is undefined.
func CreateFile(log *Log, devSize uint64, mountPoint, relpath string, mode, uid, gid uint32, size uint64, logger *slog.Logger) (Extent, error) {
	if logger == nil {
		logger = slog.Default()
	}

	extent, err := AllocateFile(log, devSize, size, logger)
	if err != nil {
		return Extent{}, err
	}

	entry, err := NewFileEntry(relpath, mode, uid, gid, size, []Extent{extent})
	if err != nil {
		return Extent{}, err
	}
	if err := log.Append(&entry); err != nil {
		return Extent{}, errors.Wrapf(err, "create file: append log entry for %s", relpath)
	}

	if err := MakeFile(mountPoint, relpath, os.FileMode(mode), uid, gid, size, []Extent{extent}); err != nil {
		return Extent{}, errors.Wrapf(err, "create file: materialize %s", relpath)
	}

	return extent, nil
}

// AllocateFile rebuilds the bitmap from log and reserves size bytes of
// contiguous space, without appending a log entry or touching the
// filesystem. CreateFile calls it as its allocation step.
func AllocateFile(log *Log, devSize uint64, size uint64, logger *slog.Logger) (Extent, error) {
	bm, err := BuildBitmap(log, devSize, logger)
	if err != nil {
		return Extent{}, errors.Wrap(err, "allocate file: rebuild bitmap")
	}
	return bm.AllocateForSize(size)
}

// MakeFile creates relpath under mountPoint as a regular file of the given
// size and binds its extents via MAP_CREATE, without touching the log. Per
// spec.md §4.7's create_file step, the new file is immediately probed with
// the NOP membership ioctl before binding; a failure there means the path
// isn't actually under a tagfs mount (ErrNotTagfs), and the partial file is
// removed. uid/gid are applied via fchown only when both are non-zero,
// matching tagfs_file_create's "if (uid && gid)" gate. Used both by
// CreateFile and by Replay for previously-logged files.
func MakeFile(mountPoint, relpath string, mode os.FileMode, uid, gid uint32, size uint64, extents []Extent) error {
	full := filepath.Join(mountPoint, relpath)

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.Wrapf(err, "make file: mkdir parent of %s", full)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_RDWR, mode.Perm())
	if err != nil {
		return errors.Wrapf(err, "make file: create %s", full)
	}
	defer f.Close()

	if err := Nop(f); err != nil {
		os.Remove(full)
		return errors.Wrapf(ErrNotTagfs, "make file: %s (%s)", full, err)
	}

	if err := MapCreate(f, FileReg, ExtentSpaceFSDAX, size, extents); err != nil {
		os.Remove(full)
		return errors.Wrapf(err, "make file: bind extents for %s", full)
	}

	if uid != 0 && gid != 0 {
		if err := f.Chown(int(uid), int(gid)); err != nil {
			return errors.Wrapf(err, "make file: chown %s", full)
		}
	}
	return nil
}
