package tagfs

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mmapFile maps length bytes of f starting at offset MAP_SHARED, the
// pattern the other_examples dittofs wal/mmap.go file uses: a direct
// window onto file bytes with field access via encoding/binary rather than
// a typed struct overlay.
func mmapFile(f *os.File, offset int64, length int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap fd %d offset %d length %d", f.Fd(), offset, length)
	}
	return data, nil
}

func munmapFile(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return errors.Wrap(err, "munmap")
	}
	return nil
}

// MapSuperblockAndLogRaw maps the superblock and log regions directly from
// the raw daxdev at devicePath: fsck uses it to scan an unmounted device,
// and mkmeta uses it to read the superblock before the .meta/ files exist.
// Per spec.md §4.2, this requires the caller to already hold whatever
// external lock prevents a concurrent mount.
func MapSuperblockAndLogRaw(devicePath string) (sbData []byte, logData []byte, closeFn func() error, err error) {
	f, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "open %s", devicePath)
	}

	total := SuperblockSize + LogLen
	region, err := mmapFile(f, 0, total)
	if err != nil {
		f.Close()
		return nil, nil, nil, err
	}

	sbData = region[:SuperblockSize]
	logData = region[LogOffset : LogOffset+LogLen]
	closeFn = func() error {
		err := munmapFile(region)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return sbData, logData, closeFn, nil
}

// MapSuperblockFile maps a mounted tagfs's .meta/.superblock meta-file,
// which the kernel driver has already bound via MAP_CREATE to alias the
// same device extent MapSuperblockAndLogRaw would read directly.
func MapSuperblockFile(metaPath string) ([]byte, func() error, error) {
	return mmapWholeFile(metaPath, SuperblockSize)
}

// MapLogFile maps a mounted tagfs's .meta/.log meta-file.
func MapLogFile(metaPath string) ([]byte, func() error, error) {
	return mmapWholeFile(metaPath, LogLen)
}

func mmapWholeFile(path string, expectLen int) ([]byte, func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "stat %s", path)
	}
	if int(info.Size()) < expectLen {
		f.Close()
		return nil, nil, errors.Errorf("%s: size %d smaller than expected %d", path, info.Size(), expectLen)
	}

	data, err := mmapFile(f, 0, expectLen)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		err := munmapFile(data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return data, closeFn, nil
}

// OpenLog wraps a mmap'd log region (either source) as a *Log.
func OpenLog(data []byte, unmap func() error) (*Log, error) {
	l := NewLog(data, unmap)
	if !l.Valid() {
		if unmap != nil {
			unmap()
		}
		return nil, ErrInvalidSuperblock
	}
	return l, nil
}

// OpenSuperblock decodes a mmap'd superblock region.
func OpenSuperblock(data []byte) (*Superblock, error) {
	sb, err := decodeSuperblock(data)
	if err != nil {
		return nil, err
	}
	if !sb.Valid() {
		return nil, ErrInvalidSuperblock
	}
	return sb, nil
}
