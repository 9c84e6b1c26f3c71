package tagfs

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// CopyFile copies an ordinary external file into a tagfs mount, the
// supplemented feature the original source's tagfs_cp implements: allocate
// space for srcPath's size inside the mount, log the allocation, bind the
// destination's extents, then stream the source's bytes in.
//
// destRelpath is relative to mountPoint, matching every other entry point
// in this package.
func CopyFile(log *Log, devSize uint64, mountPoint, srcPath, destRelpath string, mode os.FileMode, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return errors.Wrapf(err, "copy file: open source %s", srcPath)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errors.Wrapf(err, "copy file: stat source %s", srcPath)
	}
	size := uint64(info.Size())

	var uid, gid uint32
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		uid, gid = st.Uid, st.Gid
	}

	extent, err := CreateFile(log, devSize, mountPoint, destRelpath, uint32(mode.Perm()), uid, gid, size, logger)
	if err != nil {
		return errors.Wrapf(err, "copy file: create %s", destRelpath)
	}

	full := filepath.Join(mountPoint, destRelpath)
	dst, err := os.OpenFile(full, os.O_WRONLY, mode.Perm())
	if err != nil {
		return errors.Wrapf(err, "copy file: reopen %s", full)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, "copy file: stream into %s", full)
	}

	trace(logger, "copy file complete", "src", srcPath, "dst", full, "size", size, "extent", extent.String())
	return nil
}
