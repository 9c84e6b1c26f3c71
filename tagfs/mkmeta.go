package tagfs

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Mkmeta bootstraps a freshly-mounted tagfs's .meta/ directory: it creates
// .meta/.superblock and .meta/.log as regular files and binds each to the
// primary daxdev's superblock and log extents via MAP_CREATE, so userspace
// tools can mmap them through the ordinary filesystem path instead of
// opening the raw device (spec.md §4.9).
//
// devicePath is the primary daxdev to bootstrap. mountPoint is the
// directory it's mounted at; if empty, it's resolved from /proc/mounts via
// ResolveMountByDevice, per spec.md §4.9's "resolve the device → mount
// point via /proc/mounts-equivalent". Mkmeta is idempotent: if
// .meta/.superblock and .meta/.log already exist and are already bound
// (Nop succeeds against them), it returns the resolved mount point without
// recreating anything.
func Mkmeta(devicePath, mountPoint string) (string, error) {
	if mountPoint == "" {
		resolved, found, err := ResolveMountByDevice(devicePath)
		if err != nil {
			return "", errors.Wrapf(err, "mkmeta: resolve mount point for %s", devicePath)
		}
		if !found {
			return "", errors.Wrapf(ErrNotTagfs, "mkmeta: %s is not mounted as tagfs", devicePath)
		}
		mountPoint = resolved
	}

	if isMountRoot(mountPoint) {
		if err := verifyMeta(mountPoint); err == nil {
			return mountPoint, nil
		}
	}

	sbData, _, closeFn, err := MapSuperblockAndLogRaw(devicePath)
	if err != nil {
		return "", errors.Wrapf(err, "mkmeta: map %s", devicePath)
	}
	defer closeFn()

	sb, err := decodeSuperblock(sbData)
	if err != nil {
		return "", errors.Wrap(err, "mkmeta: decode superblock")
	}
	if !sb.Valid() {
		return "", errors.Wrap(ErrInvalidSuperblock, "mkmeta: bad superblock magic")
	}

	metaDir := filepath.Join(mountPoint, MetaDirName)
	if err := os.MkdirAll(metaDir, 0700); err != nil {
		return "", errors.Wrapf(err, "mkmeta: mkdir %s", metaDir)
	}

	if err := bindMetaFile(metaDir, SuperblockFileName, FileSuperblock, SuperblockSize, Extent{Offset: 0, Length: SuperblockSize}); err != nil {
		return "", err
	}
	if err := bindMetaFile(metaDir, LogFileName, FileLog, LogLen, Extent{Offset: LogOffset, Length: LogLen}); err != nil {
		return "", err
	}

	return mountPoint, nil
}

// bindMetaFile creates or reuses name under metaDir and binds it to extent
// via MAP_CREATE. Per spec.md §4.9, if a file already exists there with the
// wrong size, it's unlinked and recreated rather than reused or left bound
// to a stale extent.
func bindMetaFile(metaDir, name string, kind FileKind, size uint64, extent Extent) error {
	full := filepath.Join(metaDir, name)

	if info, err := os.Stat(full); err == nil && uint64(info.Size()) != size {
		if err := os.Remove(full); err != nil {
			return errors.Wrapf(err, "mkmeta: unlink wrong-sized %s", full)
		}
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return errors.Wrapf(err, "mkmeta: create %s", full)
	}
	defer f.Close()

	if err := MapCreate(f, kind, ExtentSpaceFSDAX, size, []Extent{extent}); err != nil {
		return errors.Wrapf(err, "mkmeta: bind %s", full)
	}
	return nil
}

// verifyMeta confirms both meta-files exist at their expected size and
// still pass the NOP membership ioctl, the way a second mkmeta invocation
// should detect it has nothing to do. A wrong-sized meta-file fails
// verification so the caller falls through to bindMetaFile's unlink-and-
// recreate path instead of trusting a stale binding.
func verifyMeta(mountPoint string) error {
	metaDir := filepath.Join(mountPoint, MetaDirName)
	expect := map[string]uint64{
		SuperblockFileName: SuperblockSize,
		LogFileName:        LogLen,
	}
	for _, name := range []string{SuperblockFileName, LogFileName} {
		f, err := os.Open(filepath.Join(metaDir, name))
		if err != nil {
			return err
		}
		info, statErr := f.Stat()
		nopErr := Nop(f)
		f.Close()
		if statErr != nil {
			return statErr
		}
		if uint64(info.Size()) != expect[name] {
			return errors.Errorf("mkmeta: %s has wrong size %d, want %d", name, info.Size(), expect[name])
		}
		if nopErr != nil {
			return nopErr
		}
	}
	return nil
}
