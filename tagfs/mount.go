package tagfs

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// MetaDirName and the two meta-files every tagfs mount publishes. A mount
// point is any directory whose .meta/ subdirectory contains both: Mkmeta
// creates them after mount and binds them to the primary device's
// superblock and log extents via MAP_CREATE.
const (
	MetaDirName        = ".meta"
	SuperblockFileName = ".superblock"
	LogFileName        = ".log"
)

// FindMountPoint walks upward from path looking for a directory whose
// .meta/ contains both meta-files, the way the original source's
// __open_relpath locates the tagfs root a relative path is being resolved
// against. Returns ErrNotTagfs if the walk reaches "/" without finding one.
func FindMountPoint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolve absolute path for %s", path)
	}

	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		if isMountRoot(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.Wrapf(ErrNotTagfs, "walking up from %s", path)
		}
		dir = parent
	}
}

func isMountRoot(dir string) bool {
	meta := filepath.Join(dir, MetaDirName)
	sb := filepath.Join(meta, SuperblockFileName)
	lg := filepath.Join(meta, LogFileName)

	if _, err := os.Stat(sb); err != nil {
		return false
	}
	if _, err := os.Stat(lg); err != nil {
		return false
	}
	return true
}

// RelPath resolves path against its enclosing tagfs mount point and returns
// the path relative to that mount's root, the way every log entry stores
// paths relative to the mount rather than absolute.
func RelPath(path string) (mountPoint, relpath string, err error) {
	mountPoint, err = FindMountPoint(path)
	if err != nil {
		return "", "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", err
	}

	rel, err := filepath.Rel(mountPoint, abs)
	if err != nil {
		return "", "", errors.Wrapf(err, "relativize %s against %s", abs, mountPoint)
	}
	return mountPoint, rel, nil
}

// mountEntry is one decoded /proc/mounts row.
type mountEntry struct {
	Device     string
	MountPoint string
	FSType     string
}

// ResolveMountByDevice scans /proc/mounts for a tagfs mount whose backing
// device matches devicePath, the way the original source's
// tagfs_get_mpt_by_dev does. Mkmeta uses it to find the mount point to
// populate; Fsck's raw scan uses it to refuse a mounted device with
// ErrDeviceBusy.
func ResolveMountByDevice(devicePath string) (mountPoint string, found bool, err error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return "", false, errors.Wrap(err, "open /proc/mounts")
	}
	defer f.Close()

	target, err := filepath.EvalSymlinks(devicePath)
	if err != nil {
		target = devicePath
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, ok := parseMountLine(scanner.Text())
		if !ok {
			continue
		}
		if entry.FSType != "tagfs" {
			continue
		}

		dev, err := filepath.EvalSymlinks(entry.Device)
		if err != nil {
			dev = entry.Device
		}
		if dev == target {
			return entry.MountPoint, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", false, errors.Wrap(err, "scan /proc/mounts")
	}
	return "", false, nil
}

func parseMountLine(line string) (mountEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return mountEntry{}, false
	}
	return mountEntry{Device: fields[0], MountPoint: fields[1], FSType: fields[2]}, true
}
