//go:build linux

package tagfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DeviceSize returns a DAX character or block device's size in bytes. Block
// devices are probed via BLKGETSIZE64; character (/dev/dax*) devices have no
// such ioctl, so size is read from /sys/dev/char/<major>:<minor>/size, the
// way the original source's tagfs_get_device_size derives its sysfs path
// from st_rdev rather than the device's basename.
func DeviceSize(devicePath string) (uint64, error) {
	info, err := os.Stat(devicePath)
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", devicePath)
	}

	if info.Mode()&os.ModeCharDevice != 0 {
		st, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return 0, errors.Errorf("stat %s: no rdev available", devicePath)
		}
		return daxDeviceSize(uint64(st.Rdev))
	}

	f, err := os.Open(devicePath)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", devicePath)
	}
	defer f.Close()

	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, errors.Wrapf(err, "BLKGETSIZE64 %s", devicePath)
	}
	return uint64(size), nil
}

// daxDeviceSize reads /sys/dev/char/<major>:<minor>/size for a /dev/dax*
// character device, given its rdev.
func daxDeviceSize(rdev uint64) (uint64, error) {
	major, minor := unix.Major(rdev), unix.Minor(rdev)
	sysPath := filepath.Join("/sys/dev/char", fmt.Sprintf("%d:%d", major, minor), "size")

	data, err := os.ReadFile(sysPath)
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", sysPath)
	}

	size, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse size from %s", sysPath)
	}
	return size, nil
}
