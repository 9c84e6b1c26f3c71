package tagfs

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// MakeDir runs the directory-creation sequence spec.md §4.8 describes:
// append a MKDIR log entry, then create the directory under mountPoint.
// Unlike CreateFile, no allocation is involved — a directory is a pure log
// entry plus a kernel-side name, not bound to any extent.
//
// Like CreateFile, callers must hold an external mutex across this call.
func MakeDir(log *Log, mountPoint, relpath string, mode, uid, gid uint32) error {
	entry, err := NewMkdirEntry(relpath, mode, uid, gid)
	if err != nil {
		return err
	}
	if err := log.Append(&entry); err != nil {
		return errors.Wrapf(err, "make dir: append log entry for %s", relpath)
	}

	full := filepath.Join(mountPoint, relpath)
	if err := os.Mkdir(full, os.FileMode(mode).Perm()); err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrAlreadyExists, "make dir: %s", full)
		}
		return errors.Wrapf(err, "make dir: mkdir %s", full)
	}

	if uid != 0 && gid != 0 {
		if err := os.Chown(full, int(uid), int(gid)); err != nil {
			return errors.Wrapf(err, "make dir: chown %s", full)
		}
	}
	return nil
}
